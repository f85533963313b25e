package lending

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrReaderNotFound is returned when the borrowing reader does not exist.
	ErrReaderNotFound = errors.New("reader not found")

	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrLoanNotFound is returned when the referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrBookUnavailable is returned when no copy of the book is free to lend.
	ErrBookUnavailable = errors.New("book unavailable")

	// ErrDuplicateActiveLoan is returned when the reader already holds an open loan for the book.
	ErrDuplicateActiveLoan = errors.New("reader already has an open loan for this book")

	// ErrBorrowLimitExceeded is returned when the reader holds the maximum number of open loans.
	ErrBorrowLimitExceeded = errors.New("borrow limit exceeded")

	// ErrInvalidDueDate is returned when a due date is not strictly in the future.
	ErrInvalidDueDate = errors.New("due date must be in the future")

	// ErrAlreadyReturned is returned when returning or extending a closed loan.
	ErrAlreadyReturned = errors.New("loan already returned")

	// ErrConflict may be returned by a Store when its unit of work lost a race. It is retried.
	ErrConflict = errors.New("concurrent update conflict")

	// ErrTransient wraps unexpected storage failures. Callers may retry.
	ErrTransient = errors.New("transient storage failure")
)

// ErrCannotExtendReturned is the name the extend operation uses for ErrAlreadyReturned.
var ErrCannotExtendReturned = ErrAlreadyReturned

var domainErrors = []error{
	ErrReaderNotFound,
	ErrBookNotFound,
	ErrLoanNotFound,
	ErrBookUnavailable,
	ErrDuplicateActiveLoan,
	ErrBorrowLimitExceeded,
	ErrInvalidDueDate,
	ErrAlreadyReturned,
}

// IsDomainError reports whether err is one of the precondition failures.
func IsDomainError(err error) bool {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// classify leaves precondition failures and context errors untouched and
// marks everything else as transient.
func classify(err error) error {
	if err == nil || IsDomainError(err) || errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
