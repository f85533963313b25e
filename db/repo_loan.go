package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repo) NextLoanID(ctx context.Context) (string, error) {
	return r.nextCode(ctx, "TD")
}

// CreateLoan 依赖部分唯一索引兜底同一读者同一本书的并发重复借阅。
// 编号来自序列，主键不会冲突，所以唯一键冲突只可能来自该索引
func (r *Repo) CreateLoan(ctx context.Context, loan *models.Loan) error {
	err := r.DB.WithContext(ctx).Omit(clause.Associations).Create(loan).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return lending.ErrDuplicateActiveLoan
	}
	return err
}

func (r *Repo) withParties(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Reader").Preload("Book").Preload("Borrower").Preload("Returner")
}

func (r *Repo) FindLoan(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.withParties(r.DB.WithContext(ctx)).First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrLoanNotFound)
	}
	return l.Refresh(time.Now()), nil
}

func (r *Repo) FindLoanForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	var l models.Loan
	if err := r.DB.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&l, "id = ?", id).Error; err != nil {
		return nil, translate(err, lending.ErrLoanNotFound)
	}
	return &l, nil
}

func (r *Repo) HasOpenLoan(ctx context.Context, readerID, bookID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Where("reader_id = ? AND book_id = ? AND returned_at IS NULL", readerID, bookID).
		Count(&n).Error
	return n > 0, err
}

func (r *Repo) UpdateLoan(ctx context.Context, id string, fields map[string]any) error {
	res := r.DB.WithContext(ctx).Model(&models.Loan{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return lending.ErrLoanNotFound
	}
	return nil
}

func (r *Repo) AppendLoanEvent(ctx context.Context, ev *models.LoanEvent) error {
	return r.DB.WithContext(ctx).Create(ev).Error
}

func (r *Repo) ListLoanEvents(ctx context.Context, loanID string) ([]models.LoanEvent, error) {
	var evs []models.LoanEvent
	err := r.DB.WithContext(ctx).Where("loan_id = ?", loanID).Order("created_at ASC, id ASC").Find(&evs).Error
	return evs, err
}

func (r *Repo) ListOverdue(ctx context.Context, now time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.withParties(r.DB.WithContext(ctx)).
		Where("returned_at IS NULL AND due_at < ?", now).
		Order("due_at ASC").
		Find(&ls).Error
	return refreshAll(ls, now), err
}

type LoanQuery struct {
	Q        string            // 模糊搜索：借阅编号/读者编号/图书编号
	Status   models.LoanStatus // "", open, overdue, returned
	Active   bool              // 未归还（open + overdue）
	ReaderID string
	BookID   string
	SortBy   string // borrowedAt | dueAt | returnedAt
	Asc      bool
	Page
}

var loanSortColumns = map[string]string{
	"borrowedAt": "borrowed_at",
	"dueAt":      "due_at",
	"returnedAt": "returned_at",
	"id":         "id",
}

func (r *Repo) ListLoans(ctx context.Context, q LoanQuery, now time.Time) (Paged[models.Loan], error) {
	offset, limit := q.bounds(100)
	tx := r.DB.WithContext(ctx).Model(&models.Loan{})

	if strings.TrimSpace(q.Q) != "" {
		like := likePattern(q.Q)
		tx = tx.Where("LOWER(id) LIKE ? OR LOWER(reader_id) LIKE ? OR LOWER(book_id) LIKE ?", like, like, like)
	}
	if q.ReaderID != "" {
		tx = tx.Where("reader_id = ?", q.ReaderID)
	}
	if q.BookID != "" {
		tx = tx.Where("book_id = ?", q.BookID)
	}
	switch {
	case q.Active:
		tx = tx.Where("returned_at IS NULL")
	case q.Status == models.LoanOpen:
		tx = tx.Where("returned_at IS NULL AND due_at >= ?", now)
	case q.Status == models.LoanOverdue:
		tx = tx.Where("returned_at IS NULL AND due_at < ?", now)
	case q.Status == models.LoanReturned:
		tx = tx.Where("returned_at IS NOT NULL")
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return Paged[models.Loan]{}, err
	}

	col, ok := loanSortColumns[q.SortBy]
	if !ok {
		col = "borrowed_at"
	}
	var ls []models.Loan
	if err := r.withParties(tx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: !q.Asc}).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&ls).Error; err != nil {
		return Paged[models.Loan]{}, err
	}
	return Paged[models.Loan]{Items: refreshAll(ls, now), Total: total}, nil
}

// LoansByReader 读者借阅历史，最近的在前
func (r *Repo) LoansByReader(ctx context.Context, readerID string, now time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).Preload("Book").
		Where("reader_id = ?", readerID).
		Order("borrowed_at DESC").
		Find(&ls).Error
	return refreshAll(ls, now), err
}

// LoansByBook 图书借阅历史，最近的在前
func (r *Repo) LoansByBook(ctx context.Context, bookID string, now time.Time) ([]models.Loan, error) {
	var ls []models.Loan
	err := r.DB.WithContext(ctx).Preload("Reader").
		Where("book_id = ?", bookID).
		Order("borrowed_at DESC").
		Find(&ls).Error
	return refreshAll(ls, now), err
}

func refreshAll(ls []models.Loan, now time.Time) []models.Loan {
	for i := range ls {
		ls[i].Refresh(now)
	}
	return ls
}
