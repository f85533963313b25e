package controllers

import (
	"net/http"
	"strings"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
)

type BookController struct{ repo *db.Repo }

func NewBookController(repo *db.Repo) *BookController { return &BookController{repo: repo} }

type bookInput struct {
	ID            string   `json:"id"`
	Title         *string  `json:"title"`
	Author        *string  `json:"author"`
	PublisherID   *string  `json:"publisherId"`
	TotalCopies   *int     `json:"totalCopies" binding:"omitempty,min=0"`
	UnitPrice     *float64 `json:"unitPrice" binding:"omitempty,min=0"`
	PublishedYear *int     `json:"publishedYear"`
}

// GET /api/books?q=&publisherId=&available=true&page=&size=
func (bc *BookController) List(c *gin.Context) {
	res, err := bc.repo.ListBooks(c.Request.Context(), db.BookQuery{
		Q:             c.Query("q"),
		PublisherID:   c.Query("publisherId"),
		AvailableOnly: c.Query("available") == "true",
		Page:          pageFrom(c),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (bc *BookController) Get(c *gin.Context) {
	b, err := bc.repo.FindBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (bc *BookController) Create(c *gin.Context) {
	var in bookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.Title == nil || in.Author == nil || in.PublisherID == nil || in.TotalCopies == nil {
		badRequest(c, "title, author, publisherId and totalCopies are required")
		return
	}
	b := &models.Book{
		ID:          strings.TrimSpace(in.ID),
		Title:       strings.TrimSpace(*in.Title),
		Author:      strings.TrimSpace(*in.Author),
		PublisherID: *in.PublisherID,
		TotalCopies: *in.TotalCopies,
	}
	if in.UnitPrice != nil {
		b.UnitPrice = *in.UnitPrice
	}
	if in.PublishedYear != nil {
		b.PublishedYear = *in.PublishedYear
	}
	if b.Title == "" || b.Author == "" {
		badRequest(c, "title and author cannot be empty")
		return
	}
	if err := bc.repo.CreateBook(c.Request.Context(), b); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// PUT /api/books/:id；可借数量不能直接改，只随总数和借还变化
func (bc *BookController) Update(c *gin.Context) {
	var in bookInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	b, err := bc.repo.UpdateBook(c.Request.Context(), c.Param("id"), db.BookUpdate{
		Title:         in.Title,
		Author:        in.Author,
		PublisherID:   in.PublisherID,
		TotalCopies:   in.TotalCopies,
		UnitPrice:     in.UnitPrice,
		PublishedYear: in.PublishedYear,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// POST /api/books/:id/recount（管理员）
func (bc *BookController) Recount(c *gin.Context) {
	b, err := bc.repo.RecountAvailability(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (bc *BookController) Delete(c *gin.Context) {
	if err := bc.repo.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
