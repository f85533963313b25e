// db/repo_reader.go
package db

import (
	"context"
	"strings"
	"time"

	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"

	"gorm.io/gorm/clause"
)

func (r *Repo) CreateReader(ctx context.Context, rd *models.Reader) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if rd.ID == "" {
			id, err := tx.nextCode(ctx, "DG")
			if err != nil {
				return err
			}
			rd.ID = id
		}
		return translateWrite(tx.DB.WithContext(ctx).Create(rd).Error)
	})
}

func (r *Repo) FindReader(ctx context.Context, id string) (*models.Reader, error) {
	var rd models.Reader
	if err := r.DB.WithContext(ctx).First(&rd, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrReaderNotFound)
	}
	return &rd, nil
}

// FindReaderForUpdate 锁住读者行，串行化同一读者的并发借书（借阅上限）
func (r *Repo) FindReaderForUpdate(ctx context.Context, id string) (*models.Reader, error) {
	var rd models.Reader
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&rd, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrReaderNotFound)
	}
	return &rd, nil
}

func (r *Repo) CountOpenLoans(ctx context.Context, readerID string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("reader_id = ? AND returned_at IS NULL", readerID).
		Count(&n).Error
	return n, err
}

func (r *Repo) ListReaders(ctx context.Context, q string, pg Page) (Paged[models.Reader], error) {
	offset, limit := pg.bounds(100)
	tx := r.DB.WithContext(ctx).Model(&models.Reader{})
	if strings.TrimSpace(q) != "" {
		like := likePattern(q)
		tx = tx.Where(`LOWER(id) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(first_name) LIKE ?
			OR LOWER(address) LIKE ? OR phone LIKE ?`, like, like, like, like, like)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Paged[models.Reader]{}, err
	}
	var rs []models.Reader
	if err := tx.Order("id ASC").Offset(offset).Limit(limit).Find(&rs).Error; err != nil {
		return Paged[models.Reader]{}, err
	}
	return Paged[models.Reader]{Items: rs, Total: total}, nil
}

func (r *Repo) UpdateReader(ctx context.Context, id string, fields map[string]any) (*models.Reader, error) {
	res := r.DB.WithContext(ctx).Model(&models.Reader{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, translateWrite(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, lending.ErrReaderNotFound
	}
	return r.FindReader(ctx, id)
}

// DeleteReader 读者仍有未归还借阅时拒绝删除
func (r *Repo) DeleteReader(ctx context.Context, id string) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		if _, err := tx.FindReaderForUpdate(ctx, id); err != nil {
			return err
		}
		n, err := tx.CountOpenLoans(ctx, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrHasOpenLoans
		}
		return tx.DB.WithContext(ctx).Delete(&models.Reader{ID: id}).Error
	})
}

// CountReadersSince 统计注册时间晚于 since 的读者
func (r *Repo) CountReadersSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Reader{}).Where("created_at >= ?", since).Count(&n).Error
	return n, err
}
