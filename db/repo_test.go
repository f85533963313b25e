package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"
)

func Test_FormatCode(t *testing.T) {
	assert.Equal(t, "TD001", db.FormatCode("TD", 1))
	assert.Equal(t, "DG042", db.FormatCode("DG", 42))
	assert.Equal(t, "S1234", db.FormatCode("S", 1234))
}

// openTestRepo 需要一个可写的空库，例如
// TEST_DATABASE_DSN="host=127.0.0.1 user=postgres password=postgres dbname=library_test sslmode=disable"
func openTestRepo(t *testing.T) *db.Repo {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set")
	}
	conn, err := db.Open(dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(conn))
	return db.NewRepo(conn)
}

type fixture struct {
	repo     *db.Repo
	readers  []string
	bookID   string
	employee string
}

func newFixture(t *testing.T, readers, copies int) fixture {
	t.Helper()
	ctx := context.Background()
	repo := openTestRepo(t)
	tag := uuid.NewString()[:8]

	pub := &models.Publisher{ID: "P" + tag, Name: "Publisher " + tag}
	require.NoError(t, repo.CreatePublisher(ctx, pub))
	book := &models.Book{ID: "B" + tag, Title: "Title " + tag, Author: "Author", PublisherID: pub.ID, TotalCopies: copies}
	require.NoError(t, repo.CreateBook(ctx, book))

	emp := &models.Employee{Email: tag + "@library.test", FullName: "Clerk " + tag}
	require.NoError(t, repo.CreateEmployee(ctx, emp))

	f := fixture{repo: repo, bookID: book.ID, employee: emp.ID}
	for i := 0; i < readers; i++ {
		rd := &models.Reader{ID: fmt.Sprintf("R%s%d", tag, i), LastName: "Reader", FirstName: tag, Phone: fmt.Sprintf("%s-%d", tag, i)}
		require.NoError(t, repo.CreateReader(ctx, rd))
		f.readers = append(f.readers, rd.ID)
	}
	return f
}

func Test_Repo_BorrowAndReturn(t *testing.T) {
	// setup
	f := newFixture(t, 1, 3)
	ctx := context.Background()
	m := lending.NewManager(f.repo)

	// act
	loan, err := m.CreateLoan(ctx, lending.CreateLoanInput{
		ReaderID: f.readers[0], BookID: f.bookID, DueAt: time.Now().Add(7 * 24 * time.Hour), EmployeeID: f.employee,
	})

	// assert
	require.NoError(t, err)
	assert.Equal(t, models.LoanOpen, loan.Status)
	book, err := f.repo.FindBook(ctx, f.bookID)
	require.NoError(t, err)
	assert.Equal(t, 2, book.AvailableCopies)

	_, err = m.CreateLoan(ctx, lending.CreateLoanInput{
		ReaderID: f.readers[0], BookID: f.bookID, DueAt: time.Now().Add(time.Hour), EmployeeID: f.employee,
	})
	assert.ErrorIs(t, err, lending.ErrDuplicateActiveLoan)

	returned, err := m.ReturnLoan(ctx, lending.ReturnLoanInput{LoanID: loan.ID, EmployeeID: f.employee, Note: "ok"})
	require.NoError(t, err)
	assert.Equal(t, models.LoanReturned, returned.Status)
	book, err = f.repo.FindBook(ctx, f.bookID)
	require.NoError(t, err)
	assert.Equal(t, 3, book.AvailableCopies)

	events, err := f.repo.ListLoanEvents(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.LoanEventBorrowed, events[0].Kind)
	assert.Equal(t, models.LoanEventReturned, events[1].Kind)
}

func Test_Repo_ConcurrentBorrowOfLastCopy(t *testing.T) {
	// setup
	f := newFixture(t, 2, 1)
	ctx := context.Background()
	m := lending.NewManager(f.repo)

	// act
	var wg sync.WaitGroup
	errs := make([]error, len(f.readers))
	for i, readerID := range f.readers {
		wg.Add(1)
		go func(i int, readerID string) {
			defer wg.Done()
			_, errs[i] = m.CreateLoan(ctx, lending.CreateLoanInput{
				ReaderID: readerID, BookID: f.bookID, DueAt: time.Now().Add(24 * time.Hour), EmployeeID: f.employee,
			})
		}(i, readerID)
	}
	wg.Wait()

	// assert
	var ok, unavailable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, lending.ErrBookUnavailable):
			unavailable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unavailable)

	book, err := f.repo.FindBook(ctx, f.bookID)
	require.NoError(t, err)
	assert.Equal(t, 0, book.AvailableCopies)
}

func Test_Repo_AdjustAvailabilityStaysInRange(t *testing.T) {
	f := newFixture(t, 0, 2)
	ctx := context.Background()

	ok, err := f.repo.AdjustAvailability(ctx, f.bookID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	book, _ := f.repo.FindBook(ctx, f.bookID)
	assert.Equal(t, 2, book.AvailableCopies)

	ok, err = f.repo.AdjustAvailability(ctx, f.bookID, -3)
	require.NoError(t, err)
	assert.False(t, ok)
	book, _ = f.repo.FindBook(ctx, f.bookID)
	assert.Equal(t, 2, book.AvailableCopies)
}

func Test_Repo_DeleteRefusedWithOpenLoans(t *testing.T) {
	f := newFixture(t, 1, 1)
	ctx := context.Background()
	m := lending.NewManager(f.repo)

	_, err := m.CreateLoan(ctx, lending.CreateLoanInput{
		ReaderID: f.readers[0], BookID: f.bookID, DueAt: time.Now().Add(time.Hour), EmployeeID: f.employee,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.repo.DeleteReader(ctx, f.readers[0]), db.ErrHasOpenLoans)
	assert.ErrorIs(t, f.repo.DeleteBook(ctx, f.bookID), db.ErrHasOpenLoans)
}

func Test_Repo_MissingRowsMapToLendingErrors(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.FindBook(ctx, "missing")
	assert.ErrorIs(t, err, lending.ErrBookNotFound)
	_, err = repo.FindReader(ctx, "missing")
	assert.ErrorIs(t, err, lending.ErrReaderNotFound)
	_, err = repo.FindLoan(ctx, "missing")
	assert.ErrorIs(t, err, lending.ErrLoanNotFound)
}

func Test_Repo_StatsFollowLoanDates(t *testing.T) {
	// setup
	repo := openTestRepo(t)
	ctx := context.Background()
	now := time.Now()
	before, err := repo.Stats(ctx, now)
	require.NoError(t, err)

	f := newFixture(t, 2, 3)
	m := lending.NewManager(f.repo)
	first, err := m.CreateLoan(ctx, lending.CreateLoanInput{
		ReaderID: f.readers[0], BookID: f.bookID, DueAt: now.Add(24 * time.Hour), EmployeeID: f.employee,
	})
	require.NoError(t, err)
	late, err := m.CreateLoan(ctx, lending.CreateLoanInput{
		ReaderID: f.readers[1], BookID: f.bookID, DueAt: now.Add(24 * time.Hour), EmployeeID: f.employee,
	})
	require.NoError(t, err)
	require.NoError(t, f.repo.UpdateLoan(ctx, late.ID, map[string]any{"due_at": now.Add(-time.Hour)}))
	_, err = m.ReturnLoan(ctx, lending.ReturnLoanInput{LoanID: first.ID, EmployeeID: f.employee})
	require.NoError(t, err)

	// act
	after, err := repo.Stats(ctx, now)

	// assert
	require.NoError(t, err)
	assert.Equal(t, before.Readers+2, after.Readers)
	assert.Equal(t, before.Books+1, after.Books)
	assert.Equal(t, before.Publishers+1, after.Publishers)
	assert.Equal(t, before.Employees+1, after.Employees)
	assert.Equal(t, before.TotalCopies+3, after.TotalCopies)
	assert.Equal(t, before.OnShelf+2, after.OnShelf)
	assert.Equal(t, before.OpenLoans+1, after.OpenLoans)
	assert.Equal(t, before.OverdueLoans+1, after.OverdueLoans)
	assert.Equal(t, before.BorrowedToday+2, after.BorrowedToday)
	assert.Equal(t, before.ReturnedToday+1, after.ReturnedToday)
	assert.Equal(t, before.NewReadersToday+2, after.NewReadersToday)
}

func trendBuckets(t *testing.T, repo *db.Repo, since time.Time, monthly bool) map[string]db.TrendPoint {
	t.Helper()
	points, err := repo.BorrowTrends(context.Background(), since, monthly)
	require.NoError(t, err)
	out := make(map[string]db.TrendPoint, len(points))
	for _, p := range points {
		out[p.Bucket] = p
	}
	return out
}

func Test_Repo_BorrowTrendsBuckets(t *testing.T) {
	// setup
	f := newFixture(t, 3, 3)
	ctx := context.Background()
	since := time.Date(2001, 3, 1, 0, 0, 0, 0, time.UTC)
	dailyBefore := trendBuckets(t, f.repo, since, false)
	monthlyBefore := trendBuckets(t, f.repo, since, true)

	returnedAt := time.Date(2001, 3, 9, 12, 0, 0, 0, time.UTC)
	loans := []models.Loan{
		{BorrowedAt: time.Date(2001, 3, 5, 10, 0, 0, 0, time.UTC), ReturnedAt: &returnedAt},
		{BorrowedAt: time.Date(2001, 3, 5, 14, 0, 0, 0, time.UTC)},
		{BorrowedAt: time.Date(2001, 4, 10, 12, 0, 0, 0, time.UTC)},
	}
	tag := uuid.NewString()[:8]
	for i := range loans {
		l := loans[i]
		l.ID = fmt.Sprintf("T%s%d", tag, i)
		l.ReaderID = f.readers[i]
		l.BookID = f.bookID
		l.DueAt = l.BorrowedAt.Add(14 * 24 * time.Hour)
		l.BorrowedBy = f.employee
		require.NoError(t, f.repo.CreateLoan(ctx, &l))
	}

	// act
	daily := trendBuckets(t, f.repo, since, false)
	monthly := trendBuckets(t, f.repo, since, true)

	// assert
	assert.Equal(t, dailyBefore["2001-03-05"].Borrows+2, daily["2001-03-05"].Borrows)
	assert.Equal(t, dailyBefore["2001-03-05"].Returns+1, daily["2001-03-05"].Returns)
	assert.Equal(t, dailyBefore["2001-04-10"].Borrows+1, daily["2001-04-10"].Borrows)
	assert.Equal(t, monthlyBefore["2001-03"].Borrows+2, monthly["2001-03"].Borrows)
	assert.Equal(t, monthlyBefore["2001-03"].Returns+1, monthly["2001-03"].Returns)
	assert.Equal(t, monthlyBefore["2001-04"].Borrows+1, monthly["2001-04"].Borrows)
	_, ok := monthly["2001-03-05"]
	assert.False(t, ok, "monthly buckets must not carry a day")
}

func Test_Repo_PopularBooksAndRecentActivity(t *testing.T) {
	// setup
	f := newFixture(t, 3, 3)
	ctx := context.Background()
	now := time.Now()
	first, err := f.repo.FindBook(ctx, f.bookID)
	require.NoError(t, err)
	tag := uuid.NewString()[:8]
	second := &models.Book{ID: "C" + tag, Title: "Second " + tag, Author: "Author", PublisherID: first.PublisherID, TotalCopies: 1}
	require.NoError(t, f.repo.CreateBook(ctx, second))

	borrowed := now.Add(-30 * time.Second)
	plan := []struct{ reader, book string }{
		{f.readers[0], first.ID},
		{f.readers[1], first.ID},
		{f.readers[2], second.ID},
	}
	var lastID string
	for i, p := range plan {
		lastID = fmt.Sprintf("T%s%d", tag, i)
		require.NoError(t, f.repo.CreateLoan(ctx, &models.Loan{
			ID: lastID, ReaderID: p.reader, BookID: p.book,
			BorrowedAt: borrowed, DueAt: now.Add(time.Hour), BorrowedBy: f.employee,
		}))
	}

	// act
	popular, err := f.repo.PopularBooks(ctx, now.Add(-time.Minute), 50)
	require.NoError(t, err)
	recent, err := f.repo.RecentActivity(ctx, 2, now)
	require.NoError(t, err)

	// assert
	rank := map[string]int{}
	for i, p := range popular {
		rank[p.BookID] = i
		switch p.BookID {
		case first.ID:
			assert.Equal(t, int64(2), p.Loans)
			assert.Equal(t, first.Title, p.Title)
		case second.ID:
			assert.Equal(t, int64(1), p.Loans)
		}
	}
	require.Contains(t, rank, first.ID)
	require.Contains(t, rank, second.ID)
	assert.Less(t, rank[first.ID], rank[second.ID])

	require.Len(t, recent.Transactions, 2)
	assert.Equal(t, lastID, recent.Transactions[0].ID)
	require.NotNil(t, recent.Transactions[0].Reader)
	require.NotNil(t, recent.Transactions[0].Book)
	assert.Equal(t, models.LoanOpen, recent.Transactions[0].Status)
	require.NotEmpty(t, recent.Books)
	assert.Equal(t, second.ID, recent.Books[0].ID)
	require.NotNil(t, recent.Books[0].Publisher)
	require.NotEmpty(t, recent.Readers)
	assert.Equal(t, f.readers[2], recent.Readers[0].ID)
}

func newInvite(t *testing.T, repo *db.Repo, expires time.Time) *models.Invite {
	t.Helper()
	tag := uuid.NewString()
	inv := &models.Invite{Email: tag[:8] + "@invite.test", FullName: "New Clerk", Token: tag, ExpiresAt: expires}
	require.NoError(t, repo.CreateInvite(context.Background(), inv))
	return inv
}

func Test_Repo_AcceptInviteOnlyOnce(t *testing.T) {
	// setup
	repo := openTestRepo(t)
	ctx := context.Background()
	inv := newInvite(t, repo, time.Now().Add(time.Hour))
	setPassword := func(tx *db.Repo, e *models.Employee) error {
		return tx.SetEmployeePassword(ctx, e.ID, "hash")
	}

	// act
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = repo.AcceptInvite(ctx, inv.Token, time.Now(), setPassword)
		}(i)
	}
	wg.Wait()

	// assert
	var ok, unusable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, db.ErrInviteUnusable):
			unusable++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, unusable)

	used, err := repo.GetInviteByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.NotNil(t, used.UsedAt)
	e, err := repo.FindEmployeeByEmail(ctx, inv.Email)
	require.NoError(t, err)
	assert.Equal(t, "hash", e.PasswordHash)
}

func Test_Repo_AcceptInviteRejectsAndRollsBack(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()

	_, err := repo.AcceptInvite(ctx, "no-such-token", time.Now(), nil)
	assert.ErrorIs(t, err, db.ErrInviteUnusable)

	expired := newInvite(t, repo, time.Now().Add(-time.Minute))
	_, err = repo.AcceptInvite(ctx, expired.Token, time.Now(), nil)
	assert.ErrorIs(t, err, db.ErrInviteUnusable)

	// apply 失败：员工和邀请核销一起回滚
	inv := newInvite(t, repo, time.Now().Add(time.Hour))
	boom := errors.New("credential rejected")
	_, err = repo.AcceptInvite(ctx, inv.Token, time.Now(), func(*db.Repo, *models.Employee) error { return boom })
	assert.ErrorIs(t, err, boom)

	still, err := repo.GetInviteByToken(ctx, inv.Token)
	require.NoError(t, err)
	assert.Nil(t, still.UsedAt)
	_, err = repo.FindEmployeeByEmail(ctx, inv.Email)
	assert.ErrorIs(t, err, db.ErrNotFound)
}
