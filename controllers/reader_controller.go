package controllers

import (
	"net/http"
	"strings"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
)

type ReaderController struct{ repo *db.Repo }

func NewReaderController(repo *db.Repo) *ReaderController { return &ReaderController{repo: repo} }

type readerInput struct {
	ID        string  `json:"id"`
	LastName  *string `json:"lastName"`
	FirstName *string `json:"firstName"`
	BirthDate *string `json:"birthDate"`
	Gender    *string `json:"gender"`
	Address   *string `json:"address"`
	Phone     *string `json:"phone"`
}

// fields 转成 UpdateReader 需要的列；BirthDate 解析失败返回错误
func (in readerInput) fields() (map[string]any, error) {
	fields := map[string]any{}
	set := func(col string, v *string) {
		if v != nil {
			fields[col] = strings.TrimSpace(*v)
		}
	}
	set("last_name", in.LastName)
	set("first_name", in.FirstName)
	set("gender", in.Gender)
	set("address", in.Address)
	set("phone", in.Phone)
	if in.BirthDate != nil {
		t, err := parseDate(*in.BirthDate)
		if err != nil {
			return nil, err
		}
		fields["birth_date"] = t
	}
	return fields, nil
}

// GET /api/readers?q=&page=&size=
func (rc *ReaderController) List(c *gin.Context) {
	res, err := rc.repo.ListReaders(c.Request.Context(), c.Query("q"), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (rc *ReaderController) Get(c *gin.Context) {
	rd, err := rc.repo.FindReader(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	open, err := rc.repo.CountOpenLoans(c.Request.Context(), rd.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"reader": rd, "openLoans": open})
}

func (rc *ReaderController) Create(c *gin.Context) {
	var in readerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.FirstName == nil || in.Phone == nil ||
		strings.TrimSpace(*in.FirstName) == "" || strings.TrimSpace(*in.Phone) == "" {
		badRequest(c, "firstName and phone are required")
		return
	}
	rd := &models.Reader{
		ID:        strings.TrimSpace(in.ID),
		FirstName: strings.TrimSpace(*in.FirstName),
		Phone:     strings.TrimSpace(*in.Phone),
	}
	if in.LastName != nil {
		rd.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Gender != nil {
		rd.Gender = strings.TrimSpace(*in.Gender)
	}
	if in.Address != nil {
		rd.Address = strings.TrimSpace(*in.Address)
	}
	if in.BirthDate != nil {
		t, err := parseDate(*in.BirthDate)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		rd.BirthDate = t
	}
	if err := rc.repo.CreateReader(c.Request.Context(), rd); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rd)
}

func (rc *ReaderController) Update(c *gin.Context) {
	var in readerInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	fields, err := in.fields()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(fields) == 0 {
		badRequest(c, "nothing to update")
		return
	}
	rd, err := rc.repo.UpdateReader(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rd)
}

func (rc *ReaderController) Delete(c *gin.Context) {
	if err := rc.repo.DeleteReader(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
