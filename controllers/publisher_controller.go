package controllers

import (
	"net/http"
	"strings"

	"Gin_postgres_redis_library/app"
	"Gin_postgres_redis_library/db"
	"Gin_postgres_redis_library/models"

	"github.com/gin-gonic/gin"
)

type PublisherController struct{ repo *db.Repo }

func NewPublisherController(repo *db.Repo) *PublisherController {
	return &PublisherController{repo: repo}
}

type publisherInput struct {
	ID      string  `json:"id"`
	Name    *string `json:"name"`
	Address *string `json:"address"`
}

// GET /api/publishers?q=&page=&size=
func (pc *PublisherController) List(c *gin.Context) {
	res, err := pc.repo.ListPublishers(c.Request.Context(), c.Query("q"), pageFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (pc *PublisherController) Get(c *gin.Context) {
	p, err := pc.repo.FindPublisher(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *PublisherController) Create(c *gin.Context) {
	var in publisherInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		badRequest(c, "name is required")
		return
	}
	p := &models.Publisher{ID: strings.TrimSpace(in.ID), Name: strings.TrimSpace(*in.Name)}
	if in.Address != nil {
		p.Address = strings.TrimSpace(*in.Address)
	}
	if err := pc.repo.CreatePublisher(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (pc *PublisherController) Update(c *gin.Context) {
	var in publisherInput
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err.Error())
		return
	}
	fields := map[string]any{}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			badRequest(c, "name cannot be empty")
			return
		}
		fields["name"] = strings.TrimSpace(*in.Name)
	}
	if in.Address != nil {
		fields["address"] = strings.TrimSpace(*in.Address)
	}
	if len(fields) == 0 {
		badRequest(c, "nothing to update")
		return
	}
	p, err := pc.repo.UpdatePublisher(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (pc *PublisherController) Delete(c *gin.Context) {
	if err := pc.repo.DeletePublisher(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
