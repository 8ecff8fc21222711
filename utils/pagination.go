package utils

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// Pagination is the page window read from ?page= and ?limit=
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// PaginationMeta is returned next to a page of results
type PaginationMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int64 `json:"total_pages"`
}

// NewPagination reads the window from the query, clamping limit to MaxPaginationLimit
func NewPagination(c *gin.Context) *Pagination {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(DefaultPaginationLimit)))
	if err != nil || limit < 1 {
		limit = DefaultPaginationLimit
	}
	if limit > MaxPaginationLimit {
		limit = MaxPaginationLimit
	}

	return &Pagination{
		Page:   page,
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
}

// Meta describes the page for a result set of total rows
func (p *Pagination) Meta(total int64) PaginationMeta {
	return PaginationMeta{
		Total:      total,
		Page:       p.Page,
		PerPage:    p.Limit,
		TotalPages: (total + int64(p.Limit) - 1) / int64(p.Limit),
	}
}
