package lending

import (
	"context"
	"time"

	"Gin_postgres_redis_library/models"
)

// Catalog is the book side of a unit of work.
type Catalog interface {
	FindBook(ctx context.Context, id string) (*models.Book, error)
	// FindBookForUpdate locks the book row until the unit of work ends.
	FindBookForUpdate(ctx context.Context, id string) (*models.Book, error)
	// AdjustAvailability changes available copies by delta in one conditional
	// write. It reports false, without writing, when the result would be
	// negative. The result is clamped to the book's total copies.
	AdjustAvailability(ctx context.Context, id string, delta int) (bool, error)
}

// Readers is the reader side of a unit of work.
type Readers interface {
	FindReader(ctx context.Context, id string) (*models.Reader, error)
	FindReaderForUpdate(ctx context.Context, id string) (*models.Reader, error)
	CountOpenLoans(ctx context.Context, readerID string) (int64, error)
}

// Ledger stores loans and their audit trail.
type Ledger interface {
	NextLoanID(ctx context.Context) (string, error)
	CreateLoan(ctx context.Context, loan *models.Loan) error
	// FindLoan returns the loan with reader, book and employees resolved.
	FindLoan(ctx context.Context, id string) (*models.Loan, error)
	FindLoanForUpdate(ctx context.Context, id string) (*models.Loan, error)
	HasOpenLoan(ctx context.Context, readerID, bookID string) (bool, error)
	UpdateLoan(ctx context.Context, id string, fields map[string]any) error
	AppendLoanEvent(ctx context.Context, ev *models.LoanEvent) error
	// ListOverdue returns open loans due before now, soonest due first.
	ListOverdue(ctx context.Context, now time.Time) ([]models.Loan, error)
}

// Store is everything a unit of work can touch.
//
// Finders return ErrBookNotFound, ErrReaderNotFound or ErrLoanNotFound on a miss.
type Store interface {
	Catalog
	Readers
	Ledger
}

// TxRunner runs fn as one atomic, isolated unit. Any error returned by fn
// discards every write fn made.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Store) error) error
}
