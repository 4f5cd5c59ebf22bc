package pagination

import (
	"net/http"
	"strconv"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Params is a page request parsed from ?page=&per_page=.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Offset is the number of rows to skip.
func (p Params) Offset() int {
	return (p.Page - 1) * p.PerPage
}

// FromRequest parses page and per_page, ignoring invalid values and capping
// per_page at 100.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	p := Params{Page: 1, PerPage: defaultPerPage}

	if v := positiveInt(q.Get("page")); v > 0 {
		p.Page = v
	}
	if v := positiveInt(q.Get("per_page")); v > 0 {
		p.PerPage = min(v, maxPerPage)
	}
	return p
}

func positiveInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return 0
	}
	return v
}

// Page is one page of results with navigation metadata.
type Page[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	TotalPages int `json:"total_pages"`
}

// NewPage wraps items. A nil slice is returned as an empty one.
func NewPage[T any](items []T, total int, p Params) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.PerPage > 0 {
		pages = (total + p.PerPage - 1) / p.PerPage
	}
	return Page[T]{Items: items, Total: total, Page: p.Page, PerPage: p.PerPage, TotalPages: pages}
}
