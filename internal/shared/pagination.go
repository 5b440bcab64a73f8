package shared

import (
	"math"
	"net/url"
	"strconv"
)

// DefaultPerPage is used when a listing request carries no page size.
const DefaultPerPage = 20

// MaxPerPage caps the page size a caller may ask for.
const MaxPerPage = 100

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
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

// PaginationFromQuery reads page and per_page from q. Malformed values fall
// back to the defaults.
func PaginationFromQuery(q url.Values, total int) Pagination {
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return NewPagination(page, perPage, total)
}

// Bounds returns the half-open index range of the current page within a
// listing of Total items.
func (p Pagination) Bounds() (start, end int) {
	start = (p.Page - 1) * p.PerPage
	if start > p.Total {
		start = p.Total
	}
	end = start + p.PerPage
	if end > p.Total {
		end = p.Total
	}
	return start, end
}

// Page slices items to the page described by p.
func Page[T any](items []T, p Pagination) []T {
	start, end := p.Bounds()
	return items[start:end]
}
