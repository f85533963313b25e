package db

import (
	"Gin_postgres_redis_library/lending"
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInUse        = errors.New("record is still referenced")
	ErrHasOpenLoans = errors.New("record has open loans")
	ErrInvalidStock = errors.New("total copies below copies on loan")

	ErrInviteUnusable = errors.New("invite is invalid, expired or already used")
)

type Repo struct{ DB *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{DB: db} }

// Transaction 在同一个事务里执行 fn，fn 返回错误则整体回滚
func (r *Repo) Transaction(ctx context.Context, fn func(tx *Repo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Repo{DB: tx})
	})
}

// InTx implements lending.TxRunner.
func (r *Repo) InTx(ctx context.Context, fn func(lending.Store) error) error {
	return r.Transaction(ctx, func(tx *Repo) error { return fn(tx) })
}

var _ lending.Store = (*Repo)(nil)

// 分页参数
type Page struct {
	Page int
	Size int
}

func (p Page) bounds(maxSize int) (offset, limit int) {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.Size <= 0 || p.Size > maxSize {
		p.Size = 20
	}
	return (p.Page - 1) * p.Size, p.Size
}

type Paged[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func likePattern(q string) string {
	return "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
}

// translate 把 gorm 错误映射为仓储层错误
func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", ErrInUse, err)
	}
	return err
}

// nextSequence 原子自增计数器；在事务里调用时回滚不会留下空号
func (r *Repo) nextSequence(ctx context.Context, name string) (int64, error) {
	var n int64
	err := r.DB.WithContext(ctx).Raw(`
		INSERT INTO lib_sequences (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = lib_sequences.value + 1
		RETURNING value`, name).Scan(&n).Error
	if err != nil {
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return n, nil
}

func (r *Repo) nextCode(ctx context.Context, prefix string) (string, error) {
	n, err := r.nextSequence(ctx, prefix)
	if err != nil {
		return "", err
	}
	return FormatCode(prefix, n), nil
}

// FormatCode renders sequential codes such as TD001, DG012, S1234.
func FormatCode(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

func translateWrite(err error) error { return translate(err, err) }
