package shared

import (
	"math"
	"net/url"
	"strconv"
)

const (
	// DefaultPerPage is used when a listing names no page size.
	DefaultPerPage = 50
	// MaxPerPage caps any requested page size.
	MaxPerPage = 200
)

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}

// Offset is the number of rows before the current page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// PageParams reads page and per_page from a query string. Malformed values read as zero.
func PageParams(q url.Values) (page, perPage int) {
	page, _ = strconv.Atoi(q.Get("page"))
	perPage, _ = strconv.Atoi(q.Get("per_page"))
	return page, perPage
}
