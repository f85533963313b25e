// models/catalog.go
package models

import "time"

const (
	BookTable      = "lib_books"
	PublisherTable = "lib_publishers"
	ReaderTable    = "lib_readers"
)

type Publisher struct {
	ID        string    `gorm:"primaryKey;size:20" json:"id"` // NXB001
	Name      string    `gorm:"size:200;not null" json:"name"`
	Address   string    `gorm:"size:255" json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Book 的 AvailableCopies 只由借还流程修改，约束保证 0 <= available <= total
type Book struct {
	ID              string     `gorm:"primaryKey;size:20" json:"id"` // S001
	Title           string     `gorm:"size:200;not null;index" json:"title"`
	Author          string     `gorm:"size:100;not null" json:"author"`
	PublisherID     string     `gorm:"size:20;index;not null" json:"publisherId"`
	Publisher       *Publisher `gorm:"foreignKey:PublisherID" json:"publisher,omitempty"`
	TotalCopies     int        `gorm:"not null;default:0;check:chk_book_total,total_copies >= 0" json:"totalCopies"`
	AvailableCopies int        `gorm:"not null;default:0;check:chk_book_stock,available_copies >= 0 AND available_copies <= total_copies" json:"availableCopies"`
	UnitPrice       float64    `gorm:"not null;default:0" json:"unitPrice"`
	PublishedYear   int        `json:"publishedYear"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (b *Book) Available() bool { return b.AvailableCopies > 0 }

type Reader struct {
	ID        string    `gorm:"primaryKey;size:20" json:"id"` // DG001
	LastName  string    `gorm:"size:50;not null" json:"lastName"`
	FirstName string    `gorm:"size:20;not null" json:"firstName"`
	BirthDate time.Time `gorm:"type:date" json:"birthDate"`
	Gender    string    `gorm:"size:10" json:"gender"`
	Address   string    `gorm:"size:200" json:"address"`
	Phone     string    `gorm:"size:20;uniqueIndex;not null" json:"phone"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (r *Reader) FullName() string {
	if r.LastName == "" {
		return r.FirstName
	}
	return r.LastName + " " + r.FirstName
}

func (Publisher) TableName() string { return PublisherTable }
func (Book) TableName() string      { return BookTable }
func (Reader) TableName() string    { return ReaderTable }
