package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/lending"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
)

// Lender 借还流程，由 *lending.Manager 实现
type Lender interface {
	CreateLoan(ctx context.Context, in lending.CreateLoanInput) (*models.Loan, error)
	ReturnLoan(ctx context.Context, in lending.ReturnLoanInput) (*models.Loan, error)
	ExtendDueDate(ctx context.Context, in lending.ExtendDueDateInput) (*models.Loan, error)
	ListOverdue(ctx context.Context) ([]models.Loan, error)
	BorrowLimit() int
}

// LoanReader 借阅台账的只读查询，由 *db.Repo 实现
type LoanReader interface {
	FindLoan(ctx context.Context, id string) (*models.Loan, error)
	ListLoans(ctx context.Context, q db.LoanQuery, now time.Time) (db.Paged[models.Loan], error)
	ListLoanEvents(ctx context.Context, loanID string) ([]models.LoanEvent, error)
	LoansByReader(ctx context.Context, readerID string, now time.Time) ([]models.Loan, error)
	LoansByBook(ctx context.Context, bookID string, now time.Time) ([]models.Loan, error)
}

type LoanController struct {
	lender   Lender
	ledger   LoanReader
	loanDays int
	now      func() time.Time
}

func NewLoanController(lender Lender, ledger LoanReader, loanDays int) *LoanController {
	if loanDays <= 0 {
		loanDays = 14
	}
	return &LoanController{lender: lender, ledger: ledger, loanDays: loanDays, now: time.Now}
}

// loanView 额外带上借阅天数和逾期天数
type loanView struct {
	*models.Loan
	DaysBorrowed int `json:"daysBorrowed"`
	DaysOverdue  int `json:"daysOverdue"`
}

func viewOf(l *models.Loan, now time.Time) loanView {
	l.Refresh(now)
	return loanView{Loan: l, DaysBorrowed: l.DaysBorrowed(now), DaysOverdue: l.DaysOverdue(now)}
}

func viewsOf(ls []models.Loan, now time.Time) []loanView {
	out := make([]loanView, 0, len(ls))
	for i := range ls {
		out = append(out, viewOf(&ls[i], now))
	}
	return out
}

// GET /api/loans?q=&status=open|overdue|returned|active&readerId=&bookId=&sortBy=&order=asc&page=&size=
func (lc *LoanController) List(c *gin.Context) {
	q := db.LoanQuery{
		Q:        c.Query("q"),
		ReaderID: c.Query("readerId"),
		BookID:   c.Query("bookId"),
		SortBy:   c.Query("sortBy"),
		Asc:      c.Query("order") == "asc",
		Page:     pageFrom(c),
	}
	switch st := c.Query("status"); st {
	case "":
	case "active":
		q.Active = true
	case string(models.LoanOpen), string(models.LoanOverdue), string(models.LoanReturned):
		q.Status = models.LoanStatus(st)
	default:
		badRequest(c, "unknown status "+st)
		return
	}

	now := lc.now()
	res, err := lc.ledger.ListLoans(c.Request.Context(), q, now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": viewsOf(res.Items, now), "total": res.Total})
}

// GET /api/loans/overdue
func (lc *LoanController) Overdue(c *gin.Context) {
	ls, err := lc.lender.ListOverdue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": viewsOf(ls, lc.now()), "total": len(ls)})
}

func (lc *LoanController) Get(c *gin.Context) {
	l, err := lc.ledger.FindLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(l, lc.now()))
}

// GET /api/loans/:id/events
func (lc *LoanController) Events(c *gin.Context) {
	ctx := c.Request.Context()
	if _, err := lc.ledger.FindLoan(ctx, c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	evs, err := lc.ledger.ListLoanEvents(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": evs})
}

type borrowReq struct {
	ReaderID string `json:"readerId" binding:"required"`
	BookID   string `json:"bookId" binding:"required"`
	DueAt    string `json:"dueAt"` // 2024-01-29 或 RFC3339；为空则按默认借期
	Note     string `json:"note"`
}

// POST /api/loans
func (lc *LoanController) Borrow(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	var req borrowReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	now := lc.now()
	due, err := parseDueDate(req.DueAt, now, lc.loanDays)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	loan, err := lc.lender.CreateLoan(c.Request.Context(), lending.CreateLoanInput{
		ReaderID:   req.ReaderID,
		BookID:     req.BookID,
		DueAt:      due,
		EmployeeID: eid,
		Note:       req.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewOf(loan, now))
}

// POST /api/loans/:id/return
func (lc *LoanController) Return(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	var in struct {
		Note string `json:"note"`
	}
	// body 可省略；空 body 是 io.EOF
	if err := c.ShouldBindJSON(&in); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err.Error())
		return
	}

	loan, err := lc.lender.ReturnLoan(c.Request.Context(), lending.ReturnLoanInput{
		LoanID:     c.Param("id"),
		EmployeeID: eid,
		Note:       in.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(loan, lc.now()))
}

// POST /api/loans/:id/extend
func (lc *LoanController) Extend(c *gin.Context) {
	eid, ok := app.EmployeeID(c)
	if !ok {
		unauthorized(c)
		return
	}
	var in struct {
		DueAt string `json:"dueAt" binding:"required"`
		Note  string `json:"note"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	now := lc.now()
	due, err := parseDueDate(in.DueAt, now, lc.loanDays)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	loan, err := lc.lender.ExtendDueDate(c.Request.Context(), lending.ExtendDueDateInput{
		LoanID:     c.Param("id"),
		DueAt:      due,
		EmployeeID: eid,
		Note:       in.Note,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(loan, now))
}

// GET /api/readers/:id/loans
func (lc *LoanController) ByReader(c *gin.Context) {
	now := lc.now()
	ls, err := lc.ledger.LoansByReader(c.Request.Context(), c.Param("id"), now)
	if err != nil {
		writeError(c, err)
		return
	}
	open := 0
	for i := range ls {
		if ls[i].IsOpen() {
			open++
		}
	}
	c.JSON(http.StatusOK, app.H{
		"items":       viewsOf(ls, now),
		"openLoans":   open,
		"borrowLimit": lc.lender.BorrowLimit(),
	})
}

// GET /api/books/:id/loans
func (lc *LoanController) ByBook(c *gin.Context) {
	now := lc.now()
	ls, err := lc.ledger.LoansByBook(c.Request.Context(), c.Param("id"), now)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": viewsOf(ls, now)})
}
