package lending_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"
)

// memStore is a lending.TxRunner that serializes units of work and applies
// their writes only when the unit returns nil.
type memStore struct {
	mu      sync.Mutex
	state   *memState
	commits int
}

type memState struct {
	books   map[string]models.Book
	readers map[string]models.Reader
	loans   map[string]models.Loan
	events  []models.LoanEvent
	seq     int64
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		books:   map[string]models.Book{},
		readers: map[string]models.Reader{},
		loans:   map[string]models.Loan{},
	}}
}

func (m *memStore) addBook(id string, total, available int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.books[id] = models.Book{ID: id, Title: "Book " + id, TotalCopies: total, AvailableCopies: available}
}

func (m *memStore) addReader(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.readers[id] = models.Reader{ID: id, FirstName: id}
}

func (m *memStore) putLoan(l models.Loan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.loans[l.ID] = l
}

func (m *memStore) book(id string) models.Book {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[id]
}

func (m *memStore) loan(id string) models.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.loans[id]
}

func (m *memStore) loanCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.loans)
}

func (m *memStore) eventKinds(loanID string) []models.LoanEventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LoanEventKind
	for _, ev := range m.state.events {
		if ev.LoanID == loanID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (m *memStore) InTx(ctx context.Context, fn func(lending.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	m.commits++
	return nil
}

func (s *memState) clone() *memState {
	c := &memState{
		books:   make(map[string]models.Book, len(s.books)),
		readers: make(map[string]models.Reader, len(s.readers)),
		loans:   make(map[string]models.Loan, len(s.loans)),
		events:  append([]models.LoanEvent(nil), s.events...),
		seq:     s.seq,
	}
	for k, v := range s.books {
		c.books[k] = v
	}
	for k, v := range s.readers {
		c.readers[k] = v
	}
	for k, v := range s.loans {
		c.loans[k] = v
	}
	return c
}

type memTx struct{ state *memState }

func (t *memTx) FindBook(_ context.Context, id string) (*models.Book, error) {
	b, ok := t.state.books[id]
	if !ok {
		return nil, lending.ErrBookNotFound
	}
	return &b, nil
}

func (t *memTx) FindBookForUpdate(ctx context.Context, id string) (*models.Book, error) {
	return t.FindBook(ctx, id)
}

func (t *memTx) AdjustAvailability(_ context.Context, id string, delta int) (bool, error) {
	b, ok := t.state.books[id]
	if !ok || b.AvailableCopies+delta < 0 {
		return false, nil
	}
	b.AvailableCopies = min(b.TotalCopies, b.AvailableCopies+delta)
	t.state.books[id] = b
	return true, nil
}

func (t *memTx) FindReader(_ context.Context, id string) (*models.Reader, error) {
	r, ok := t.state.readers[id]
	if !ok {
		return nil, lending.ErrReaderNotFound
	}
	return &r, nil
}

func (t *memTx) FindReaderForUpdate(ctx context.Context, id string) (*models.Reader, error) {
	return t.FindReader(ctx, id)
}

func (t *memTx) CountOpenLoans(_ context.Context, readerID string) (int64, error) {
	var n int64
	for _, l := range t.state.loans {
		if l.ReaderID == readerID && l.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) NextLoanID(_ context.Context) (string, error) {
	t.state.seq++
	return fmt.Sprintf("TD%03d", t.state.seq), nil
}

func (t *memTx) CreateLoan(_ context.Context, loan *models.Loan) error {
	for _, l := range t.state.loans {
		if l.IsOpen() && l.ReaderID == loan.ReaderID && l.BookID == loan.BookID {
			return lending.ErrDuplicateActiveLoan
		}
	}
	t.state.loans[loan.ID] = *loan
	return nil
}

func (t *memTx) FindLoan(_ context.Context, id string) (*models.Loan, error) {
	l, ok := t.state.loans[id]
	if !ok {
		return nil, lending.ErrLoanNotFound
	}
	if r, ok := t.state.readers[l.ReaderID]; ok {
		l.Reader = &r
	}
	if b, ok := t.state.books[l.BookID]; ok {
		l.Book = &b
	}
	return &l, nil
}

func (t *memTx) FindLoanForUpdate(ctx context.Context, id string) (*models.Loan, error) {
	return t.FindLoan(ctx, id)
}

func (t *memTx) HasOpenLoan(_ context.Context, readerID, bookID string) (bool, error) {
	for _, l := range t.state.loans {
		if l.IsOpen() && l.ReaderID == readerID && l.BookID == bookID {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) UpdateLoan(_ context.Context, id string, fields map[string]any) error {
	l, ok := t.state.loans[id]
	if !ok {
		return lending.ErrLoanNotFound
	}
	for k, v := range fields {
		switch k {
		case "returned_at":
			at := v.(time.Time)
			l.ReturnedAt = &at
		case "returned_by":
			by := v.(string)
			l.ReturnedBy = &by
		case "due_at":
			l.DueAt = v.(time.Time)
		case "note":
			l.Note = v.(string)
		default:
			return fmt.Errorf("unexpected field %q", k)
		}
	}
	t.state.loans[id] = l
	return nil
}

func (t *memTx) AppendLoanEvent(_ context.Context, ev *models.LoanEvent) error {
	t.state.events = append(t.state.events, *ev)
	return nil
}

func (t *memTx) ListOverdue(_ context.Context, now time.Time) ([]models.Loan, error) {
	var out []models.Loan
	for _, l := range t.state.loans {
		if l.IsOpen() && l.DueAt.Before(now) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}
