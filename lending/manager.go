package lending

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"Gin_postgres_redis_library/models"
)

// DefaultBorrowLimit is the number of loans a reader may hold open at once.
const DefaultBorrowLimit = 5

// MaxNoteLength matches the size of the note column.
const MaxNoteLength = 500

type CreateLoanInput struct {
	ReaderID   string
	BookID     string
	DueAt      time.Time
	EmployeeID string
	Note       string
}

type ReturnLoanInput struct {
	LoanID     string
	EmployeeID string
	Note       string
}

type ExtendDueDateInput struct {
	LoanID     string
	DueAt      time.Time
	EmployeeID string
	Note       string
}

// Manager runs the loan lifecycle: borrow, extend, return.
type Manager struct {
	tx           TxRunner
	borrowLimit  int
	now          func() time.Time
	log          *slog.Logger
	retryOptions []RetryOption
}

// Option configures a Manager.
type Option func(*Manager)

// WithBorrowLimit overrides DefaultBorrowLimit. Non-positive values are ignored.
func WithBorrowLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.borrowLimit = n
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithRetryOptions configures how lost races are retried.
func WithRetryOptions(opts ...RetryOption) Option {
	return func(m *Manager) { m.retryOptions = opts }
}

func NewManager(tx TxRunner, opts ...Option) *Manager {
	m := &Manager{
		tx:          tx,
		borrowLimit: DefaultBorrowLimit,
		now:         time.Now,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) BorrowLimit() int { return m.borrowLimit }

// CreateLoan lends one copy of a book to a reader.
//
// Checks run in order: reader, book, stock, duplicate open loan, borrow
// limit, due date. The stock decrement is conditional on a copy still being
// free, so two borrowers racing for the last copy cannot both win.
func (m *Manager) CreateLoan(ctx context.Context, in CreateLoanInput) (*models.Loan, error) {
	note := trimNote(in.Note)
	var created *models.Loan

	err := m.run(ctx, func(s Store) error {
		now := m.now().UTC()

		reader, err := s.FindReaderForUpdate(ctx, in.ReaderID)
		if err != nil {
			return err
		}
		book, err := s.FindBookForUpdate(ctx, in.BookID)
		if err != nil {
			return err
		}
		if !book.Available() {
			return ErrBookUnavailable
		}
		open, err := s.HasOpenLoan(ctx, reader.ID, book.ID)
		if err != nil {
			return err
		}
		if open {
			return ErrDuplicateActiveLoan
		}
		n, err := s.CountOpenLoans(ctx, reader.ID)
		if err != nil {
			return err
		}
		if n >= int64(m.borrowLimit) {
			return ErrBorrowLimitExceeded
		}
		if !in.DueAt.After(now) {
			return ErrInvalidDueDate
		}

		ok, err := s.AdjustAvailability(ctx, book.ID, -1)
		if err != nil {
			return err
		}
		if !ok {
			return ErrBookUnavailable
		}

		id, err := s.NextLoanID(ctx)
		if err != nil {
			return err
		}
		loan := &models.Loan{
			ID:         id,
			ReaderID:   reader.ID,
			BookID:     book.ID,
			BorrowedAt: now,
			DueAt:      in.DueAt.UTC(),
			BorrowedBy: in.EmployeeID,
			Note:       note,
		}
		if err := s.CreateLoan(ctx, loan); err != nil {
			return err
		}
		due := loan.DueAt
		if err := s.AppendLoanEvent(ctx, &models.LoanEvent{
			LoanID:  id,
			Kind:    models.LoanEventBorrowed,
			ActorID: in.EmployeeID,
			DueAt:   &due,
			Note:    note,
		}); err != nil {
			return err
		}

		created, err = s.FindLoan(ctx, id)
		if err != nil {
			return err
		}
		created.Refresh(now)
		return nil
	})
	if err != nil {
		m.logFailure("create loan", err, slog.String("reader_id", in.ReaderID), slog.String("book_id", in.BookID))
		return nil, err
	}

	m.log.Info("loan created",
		slog.String("loan_id", created.ID),
		slog.String("reader_id", created.ReaderID),
		slog.String("book_id", created.BookID),
		slog.String("employee_id", in.EmployeeID),
		slog.Time("due_at", created.DueAt),
	)
	return created, nil
}

// ReturnLoan closes an open loan and puts the copy back on the shelf.
// A second return of the same loan fails with ErrAlreadyReturned.
func (m *Manager) ReturnLoan(ctx context.Context, in ReturnLoanInput) (*models.Loan, error) {
	note := trimNote(in.Note)
	var updated *models.Loan

	err := m.run(ctx, func(s Store) error {
		now := m.now().UTC()

		loan, err := s.FindLoanForUpdate(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if !loan.IsOpen() {
			return ErrAlreadyReturned
		}

		fields := map[string]any{
			"returned_at": now,
			"returned_by": in.EmployeeID,
		}
		if note != "" {
			fields["note"] = appendNote(loan.Note, note)
		}
		if err := s.UpdateLoan(ctx, loan.ID, fields); err != nil {
			return err
		}
		// 上限由 AdjustAvailability 钳制到 total，归还不会让库存超出总数
		if _, err := s.AdjustAvailability(ctx, loan.BookID, 1); err != nil {
			return err
		}
		if err := s.AppendLoanEvent(ctx, &models.LoanEvent{
			LoanID:  loan.ID,
			Kind:    models.LoanEventReturned,
			ActorID: in.EmployeeID,
			Note:    note,
		}); err != nil {
			return err
		}

		updated, err = s.FindLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		updated.Refresh(now)
		return nil
	})
	if err != nil {
		m.logFailure("return loan", err, slog.String("loan_id", in.LoanID))
		return nil, err
	}

	m.log.Info("loan returned",
		slog.String("loan_id", updated.ID),
		slog.String("book_id", updated.BookID),
		slog.String("employee_id", in.EmployeeID),
	)
	return updated, nil
}

// ExtendDueDate moves the due date of an open loan. Stock is untouched.
func (m *Manager) ExtendDueDate(ctx context.Context, in ExtendDueDateInput) (*models.Loan, error) {
	note := trimNote(in.Note)
	var updated *models.Loan

	err := m.run(ctx, func(s Store) error {
		now := m.now().UTC()

		loan, err := s.FindLoanForUpdate(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if !loan.IsOpen() {
			return ErrCannotExtendReturned
		}
		if !in.DueAt.After(now) {
			return ErrInvalidDueDate
		}

		due := in.DueAt.UTC()
		fields := map[string]any{"due_at": due}
		if note != "" {
			fields["note"] = appendNote(loan.Note, note)
		}
		if err := s.UpdateLoan(ctx, loan.ID, fields); err != nil {
			return err
		}
		if err := s.AppendLoanEvent(ctx, &models.LoanEvent{
			LoanID:  loan.ID,
			Kind:    models.LoanEventExtended,
			ActorID: in.EmployeeID,
			DueAt:   &due,
			Note:    note,
		}); err != nil {
			return err
		}

		updated, err = s.FindLoan(ctx, loan.ID)
		if err != nil {
			return err
		}
		updated.Refresh(now)
		return nil
	})
	if err != nil {
		m.logFailure("extend loan", err, slog.String("loan_id", in.LoanID))
		return nil, err
	}

	m.log.Info("loan extended",
		slog.String("loan_id", updated.ID),
		slog.Time("due_at", updated.DueAt),
	)
	return updated, nil
}

// ListOverdue returns every open loan past its due date, most urgent first.
func (m *Manager) ListOverdue(ctx context.Context) ([]models.Loan, error) {
	var out []models.Loan
	err := m.run(ctx, func(s Store) error {
		now := m.now().UTC()
		ls, err := s.ListOverdue(ctx, now)
		if err != nil {
			return err
		}
		for i := range ls {
			ls[i].Refresh(now)
		}
		out = ls
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Status derives the state of l at the manager's current time.
func (m *Manager) Status(l *models.Loan) models.LoanStatus {
	return l.StatusAt(m.now().UTC())
}

func (m *Manager) run(ctx context.Context, fn func(Store) error) error {
	err := RetryWithExponentialBackoff(ctx, func(ctx context.Context) error {
		return m.tx.InTx(ctx, fn)
	}, m.retryOptions...)
	return classify(err)
}

func (m *Manager) logFailure(op string, err error, attrs ...slog.Attr) {
	level := slog.LevelInfo
	if !IsDomainError(err) {
		level = slog.LevelError
	}
	args := make([]any, 0, len(attrs)+1)
	args = append(args, slog.String("error", err.Error()))
	for _, a := range attrs {
		args = append(args, a)
	}
	m.log.Log(context.Background(), level, op+" failed", args...)
}

func trimNote(note string) string {
	note = strings.TrimSpace(note)
	if r := []rune(note); len(r) > MaxNoteLength {
		note = string(r[:MaxNoteLength])
	}
	return note
}

// appendNote 合并备注，超出 MaxNoteLength 时丢弃最早的内容，新备注总是保留
func appendNote(existing, extra string) string {
	existing = strings.TrimSpace(existing)
	extra = trimNote(extra)
	if existing == "" {
		return extra
	}
	r := []rune(existing + "\n" + extra)
	if len(r) > MaxNoteLength {
		r = r[len(r)-MaxNoteLength:]
	}
	return string(r)
}
