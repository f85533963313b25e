// models/loan.go
package models

import (
	"math"
	"time"
)

const (
	LoanTable      = "lib_loans"
	LoanEventTable = "lib_loan_events"
	SequenceTable  = "lib_sequences"
)

// LoanStatus 不落库，由 DeriveStatus 按日期计算
type LoanStatus string

const (
	LoanOpen     LoanStatus = "open"
	LoanOverdue  LoanStatus = "overdue"
	LoanReturned LoanStatus = "returned"
)

// DeriveStatus is the only place a loan's state is decided.
func DeriveStatus(dueAt time.Time, returnedAt *time.Time, now time.Time) LoanStatus {
	if returnedAt != nil {
		return LoanReturned
	}
	if now.After(dueAt) {
		return LoanOverdue
	}
	return LoanOpen
}

type Loan struct {
	ID         string     `gorm:"primaryKey;size:20" json:"id"` // TD001
	ReaderID   string     `gorm:"size:20;index;not null" json:"readerId"`
	BookID     string     `gorm:"size:20;index;not null" json:"bookId"`
	BorrowedAt time.Time  `gorm:"index;not null" json:"borrowedAt"`
	DueAt      time.Time  `gorm:"not null" json:"dueAt"`
	ReturnedAt *time.Time `gorm:"index" json:"returnedAt,omitempty"`
	BorrowedBy string     `gorm:"size:20;not null" json:"borrowedBy"`
	ReturnedBy *string    `gorm:"size:20" json:"returnedBy,omitempty"`
	Note       string     `gorm:"size:500" json:"note,omitempty"`
	Status     LoanStatus `gorm:"-" json:"status"`

	Reader   *Reader   `gorm:"foreignKey:ReaderID" json:"reader,omitempty"`
	Book     *Book     `gorm:"foreignKey:BookID" json:"book,omitempty"`
	Borrower *Employee `gorm:"foreignKey:BorrowedBy" json:"borrower,omitempty"`
	Returner *Employee `gorm:"foreignKey:ReturnedBy" json:"returner,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (l *Loan) IsOpen() bool { return l.ReturnedAt == nil }

func (l *Loan) StatusAt(now time.Time) LoanStatus {
	return DeriveStatus(l.DueAt, l.ReturnedAt, now)
}

// Refresh 填充 Status，读路径统一调用
func (l *Loan) Refresh(now time.Time) *Loan {
	l.Status = l.StatusAt(now)
	return l
}

// DaysBorrowed counts started days between borrowing and return (or now).
func (l *Loan) DaysBorrowed(now time.Time) int {
	end := now
	if l.ReturnedAt != nil {
		end = *l.ReturnedAt
	}
	return ceilDays(end.Sub(l.BorrowedAt))
}

// DaysOverdue is 0 for returned or not yet due loans.
func (l *Loan) DaysOverdue(now time.Time) int {
	if l.StatusAt(now) != LoanOverdue {
		return 0
	}
	return ceilDays(now.Sub(l.DueAt))
}

func ceilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

func (Loan) TableName() string { return LoanTable }

type LoanEventKind string

const (
	LoanEventBorrowed LoanEventKind = "borrowed"
	LoanEventExtended LoanEventKind = "extended"
	LoanEventReturned LoanEventKind = "returned"
)

// LoanEvent 借还审计，每次借出/续借/归还一条
type LoanEvent struct {
	ID        uint          `gorm:"primaryKey" json:"id"`
	LoanID    string        `gorm:"size:20;index;not null" json:"loanId"`
	Kind      LoanEventKind `gorm:"size:20;not null" json:"kind"`
	ActorID   string        `gorm:"size:20" json:"actorId,omitempty"`
	DueAt     *time.Time    `json:"dueAt,omitempty"`
	Note      string        `gorm:"size:500" json:"note,omitempty"`
	CreatedAt time.Time     `gorm:"index" json:"createdAt"`
}

func (LoanEvent) TableName() string { return LoanEventTable }

// Sequence 顺序编号计数器（TD001, DG001 ...）
type Sequence struct {
	Name  string `gorm:"primaryKey;size:40"`
	Value int64  `gorm:"not null;default:0"`
}

func (Sequence) TableName() string { return SequenceTable }
