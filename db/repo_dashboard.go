// db/repo_dashboard.go
package db

import (
	"context"
	"time"

	"Gin_postgres_redis_library/models"
)

type Stats struct {
	Readers         int64   `json:"readers"`
	Books           int64   `json:"books"`
	Publishers      int64   `json:"publishers"`
	Employees       int64   `json:"employees"`
	TotalCopies     int64   `json:"totalCopies"`
	OnShelf         int64   `json:"onShelf"`
	StockValue      float64 `json:"stockValue"`
	OpenLoans       int64   `json:"openLoans"`
	OverdueLoans    int64   `json:"overdueLoans"`
	BorrowedToday   int64   `json:"borrowedToday"`
	ReturnedToday   int64   `json:"returnedToday"`
	NewReadersToday int64   `json:"newReadersToday"`
}

// Stats 汇总首页看板数据；“今天”按 now 所在时区的零点计算
func (r *Repo) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	db := r.DB.WithContext(ctx)
	var st Stats

	counts := []struct {
		model any
		dst   *int64
	}{
		{&models.Reader{}, &st.Readers},
		{&models.Book{}, &st.Books},
		{&models.Publisher{}, &st.Publishers},
		{&models.Employee{}, &st.Employees},
	}
	for _, c := range counts {
		if err := db.Model(c.model).Count(c.dst).Error; err != nil {
			return nil, err
		}
	}

	var stock struct {
		Total   int64
		OnShelf int64
		Value   float64
	}
	if err := db.Model(&models.Book{}).
		Select("COALESCE(SUM(total_copies),0) AS total, COALESCE(SUM(available_copies),0) AS on_shelf, COALESCE(SUM(total_copies * unit_price),0) AS value").
		Scan(&stock).Error; err != nil {
		return nil, err
	}
	st.TotalCopies, st.OnShelf, st.StockValue = stock.Total, stock.OnShelf, stock.Value

	if err := db.Model(&models.Loan{}).Where("returned_at IS NULL").Count(&st.OpenLoans).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Loan{}).Where("returned_at IS NULL AND due_at < ?", now).Count(&st.OverdueLoans).Error; err != nil {
		return nil, err
	}

	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	if err := db.Model(&models.Loan{}).Where("borrowed_at >= ? AND borrowed_at < ?", start, end).Count(&st.BorrowedToday).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Loan{}).Where("returned_at >= ? AND returned_at < ?", start, end).Count(&st.ReturnedToday).Error; err != nil {
		return nil, err
	}
	n, err := r.CountReadersSince(ctx, start)
	if err != nil {
		return nil, err
	}
	st.NewReadersToday = n
	return &st, nil
}

type PopularBook struct {
	BookID string `json:"bookId"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Loans  int64  `json:"loans"`
}

// PopularBooks 统计 since 之后借出次数最多的图书
func (r *Repo) PopularBooks(ctx context.Context, since time.Time, limit int) ([]PopularBook, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	var out []PopularBook
	err := r.DB.WithContext(ctx).
		Table(models.LoanTable+" AS l").
		Select("l.book_id, b.title, b.author, COUNT(*) AS loans").
		Joins("JOIN "+models.BookTable+" AS b ON b.id = l.book_id").
		Where("l.borrowed_at >= ?", since).
		Group("l.book_id, b.title, b.author").
		Order("loans DESC, l.book_id ASC").
		Limit(limit).
		Scan(&out).Error
	return out, err
}

type TrendPoint struct {
	Bucket  string `json:"bucket"` // 2024-01-15 或 2024-01
	Borrows int64  `json:"borrows"`
	Returns int64  `json:"returns"`
}

// BorrowTrends 按天或按月统计 since 之后的借出数，以及其中已归还的数量
func (r *Repo) BorrowTrends(ctx context.Context, since time.Time, monthly bool) ([]TrendPoint, error) {
	format := "YYYY-MM-DD"
	if monthly {
		format = "YYYY-MM"
	}
	var out []TrendPoint
	err := r.DB.WithContext(ctx).Model(&models.Loan{}).
		Select("to_char(borrowed_at, ?) AS bucket, COUNT(*) AS borrows, COUNT(returned_at) AS returns", format).
		Where("borrowed_at >= ?", since).
		Group("bucket").
		Order("bucket ASC").
		Scan(&out).Error
	return out, err
}

// MaxRecentActivity 最近借还记录的条数上限
const MaxRecentActivity = 20

type RecentActivity struct {
	Transactions []models.Loan   `json:"recentTransactions"`
	Readers      []models.Reader `json:"recentReaders"`
	Books        []models.Book   `json:"recentBooks"`
}

// RecentActivity 最近变动的借还记录（按 updated_at），以及最新的 5 位读者和 5 本书
func (r *Repo) RecentActivity(ctx context.Context, limit int, now time.Time) (*RecentActivity, error) {
	limit = min(max(limit, 1), MaxRecentActivity)
	db := r.DB.WithContext(ctx)
	out := RecentActivity{
		Transactions: []models.Loan{},
		Readers:      []models.Reader{},
		Books:        []models.Book{},
	}

	if err := r.withParties(db).Order("updated_at DESC, id DESC").Limit(limit).Find(&out.Transactions).Error; err != nil {
		return nil, err
	}
	refreshAll(out.Transactions, now)

	if err := db.Order("created_at DESC, id DESC").Limit(5).Find(&out.Readers).Error; err != nil {
		return nil, err
	}
	if err := db.Preload("Publisher").Order("created_at DESC, id DESC").Limit(5).Find(&out.Books).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
