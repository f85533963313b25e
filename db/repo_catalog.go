// db/repo_catalog.go
package db

import (
	"context"
	"strings"

	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Publishers

func (r *Repo) CreatePublisher(ctx context.Context, p *models.Publisher) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if p.ID == "" {
			id, err := tx.nextCode(ctx, "NXB")
			if err != nil {
				return err
			}
			p.ID = id
		}
		return translateWrite(tx.DB.WithContext(ctx).Create(p).Error)
	})
}

func (r *Repo) FindPublisher(ctx context.Context, id string) (*models.Publisher, error) {
	var p models.Publisher
	if err := r.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err, ErrNotFound)
	}
	return &p, nil
}

func (r *Repo) ListPublishers(ctx context.Context, q string, pg Page) (Paged[models.Publisher], error) {
	offset, limit := pg.bounds(100)
	tx := r.DB.WithContext(ctx).Model(&models.Publisher{})
	if strings.TrimSpace(q) != "" {
		like := likePattern(q)
		tx = tx.Where("LOWER(id) LIKE ? OR LOWER(name) LIKE ? OR LOWER(address) LIKE ?", like, like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Paged[models.Publisher]{}, err
	}
	var ps []models.Publisher
	if err := tx.Order("id ASC").Offset(offset).Limit(limit).Find(&ps).Error; err != nil {
		return Paged[models.Publisher]{}, err
	}
	return Paged[models.Publisher]{Items: ps, Total: total}, nil
}

func (r *Repo) UpdatePublisher(ctx context.Context, id string, fields map[string]any) (*models.Publisher, error) {
	res := r.DB.WithContext(ctx).Model(&models.Publisher{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translateWrite(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindPublisher(ctx, id)
}

// DeletePublisher 仍有图书引用时拒绝删除
func (r *Repo) DeletePublisher(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		var n int64
		if err := tx.DB.WithContext(ctx).Model(&models.Book{}).Where("publisher_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrInUse
		}
		res := tx.DB.WithContext(ctx).Delete(&models.Publisher{ID: id})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Books

// CreateBook 新书入库时可借数量等于总数
func (r *Repo) CreateBook(ctx context.Context, b *models.Book) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if _, err := tx.FindPublisher(ctx, b.PublisherID); err != nil {
			return err
		}
		if b.ID == "" {
			id, err := tx.nextCode(ctx, "S")
			if err != nil {
				return err
			}
			b.ID = id
		}
		b.AvailableCopies = b.TotalCopies
		return translateWrite(tx.DB.WithContext(ctx).Omit(clause.Associations).Create(b).Error)
	})
}

func (r *Repo) FindBook(ctx context.Context, id string) (*models.Book, error) {
	var b models.Book
	if err := r.DB.WithContext(ctx).Preload("Publisher").First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrBookNotFound)
	}
	return &b, nil
}

func (r *Repo) FindBookForUpdate(ctx context.Context, id string) (*models.Book, error) {
	var b models.Book
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&b, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrBookNotFound)
	}
	return &b, nil
}

// AdjustAvailability 条件更新：结果为负则不写；上限钳制到 total_copies
func (r *Repo) AdjustAvailability(ctx context.Context, id string, delta int) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&models.Book{}).
		Where("id = ? AND available_copies + ? >= 0", id, delta).
		Update("available_copies", gorm.Expr("LEAST(total_copies, available_copies + ?)", delta))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type BookQuery struct {
	Q             string // 模糊搜索：编号/书名/作者/出版社
	PublisherID   string
	AvailableOnly bool
	Page
}

func (r *Repo) ListBooks(ctx context.Context, q BookQuery) (Paged[models.Book], error) {
	offset, limit := q.bounds(100)
	tx := r.DB.WithContext(ctx).Model(&models.Book{})
	if strings.TrimSpace(q.Q) != "" {
		like := likePattern(q.Q)
		tx = tx.Where(`LOWER(id) LIKE ? OR LOWER(title) LIKE ? OR LOWER(author) LIKE ?
			OR publisher_id IN (SELECT id FROM `+models.PublisherTable+` WHERE LOWER(name) LIKE ?)`, like, like, like, like)
	}
	if q.PublisherID != "" {
		tx = tx.Where("publisher_id = ?", q.PublisherID)
	}
	if q.AvailableOnly {
		tx = tx.Where("available_copies > 0")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Paged[models.Book]{}, err
	}
	var bs []models.Book
	if err := tx.Preload("Publisher").Order("id ASC").Offset(offset).Limit(limit).Find(&bs).Error; err != nil {
		return Paged[models.Book]{}, err
	}
	return Paged[models.Book]{Items: bs, Total: total}, nil
}

type BookUpdate struct {
	Title         *string
	Author        *string
	PublisherID   *string
	TotalCopies   *int
	UnitPrice     *float64
	PublishedYear *int
}

// UpdateBook 修改总数时可借数量按未归还借阅重新计算
func (r *Repo) UpdateBook(ctx context.Context, id string, in BookUpdate) (*models.Book, error) {
	err := r.Transaction(ctx, func(tx *Repo) error {
		b, err := tx.FindBookForUpdate(ctx, id)
		if err != nil {
			return err
		}
		fields := map[string]any{}
		if in.Title != nil {
			fields["title"] = *in.Title
		}
		if in.Author != nil {
			fields["author"] = *in.Author
		}
		if in.PublisherID != nil && *in.PublisherID != b.PublisherID {
			if _, err := tx.FindPublisher(ctx, *in.PublisherID); err != nil {
				return err
			}
			fields["publisher_id"] = *in.PublisherID
		}
		if in.UnitPrice != nil {
			fields["unit_price"] = *in.UnitPrice
		}
		if in.PublishedYear != nil {
			fields["published_year"] = *in.PublishedYear
		}
		if in.TotalCopies != nil {
			onLoan, err := tx.countOpenLoansForBook(ctx, id)
			if err != nil {
				return err
			}
			if int64(*in.TotalCopies) < onLoan {
				return ErrInvalidStock
			}
			fields["total_copies"] = *in.TotalCopies
			fields["available_copies"] = int64(*in.TotalCopies) - onLoan
		}
		if len(fields) == 0 {
			return nil
		}
		return translateWrite(tx.DB.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).Updates(fields).Error)
	})
	if err != nil {
		return nil, err
	}
	return r.FindBook(ctx, id)
}

// RecountAvailability 按借阅台账重算可借数量，修复计数漂移
func (r *Repo) RecountAvailability(ctx context.Context, id string) (*models.Book, error) {
	err := r.Transaction(ctx, func(tx *Repo) error {
		if _, err := tx.FindBookForUpdate(ctx, id); err != nil {
			return err
		}
		onLoan, err := tx.countOpenLoansForBook(ctx, id)
		if err != nil {
			return err
		}
		return tx.DB.WithContext(ctx).Model(&models.Book{}).Where("id = ?", id).
			Update("available_copies", gorm.Expr("GREATEST(0, total_copies - ?)", onLoan)).Error
	})
	if err != nil {
		return nil, err
	}
	return r.FindBook(ctx, id)
}

// DeleteBook 有未归还借阅时拒绝删除
func (r *Repo) DeleteBook(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if _, err := tx.FindBookForUpdate(ctx, id); err != nil {
			return err
		}
		onLoan, err := tx.countOpenLoansForBook(ctx, id)
		if err != nil {
			return err
		}
		if onLoan > 0 {
			return ErrHasOpenLoans
		}
		return tx.DB.WithContext(ctx).Delete(&models.Book{ID: id}).Error
	})
}

func (r *Repo) countOpenLoansForBook(ctx context.Context, bookID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("book_id = ? AND returned_at IS NULL", bookID).
		Count(&n).Error
	return n, err
}
