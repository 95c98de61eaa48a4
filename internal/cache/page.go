package cache

import (
	"strings"

	apperrors "github.com/charlesng35/happycat/pkg/errors"
)

// Paging defaults.
const (
	DefaultLimit = 10
	MaxLimit     = 100
	DefaultSort  = "created_at"
)

// Query carries normalised pagination parameters.
type Query struct {
	Page  int    `form:"page" json:"page"`
	Limit int    `form:"limit" json:"limit"`
	Sort  string `form:"sort" json:"sort"`
	Order string `form:"order" json:"order"`
}

// Normalize clamps page and limit, defaults sort and order and checks the
// sort column against allowed. The first allowed column is the default; an
// empty allowed list permits only DefaultSort.
func (q Query) Normalize(allowed ...string) (Query, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	if len(allowed) == 0 {
		allowed = []string{DefaultSort}
	}
	q.Sort = strings.TrimSpace(q.Sort)
	if q.Sort == "" {
		q.Sort = allowed[0]
	}
	ok := false
	for _, col := range allowed {
		if q.Sort == col {
			ok = true
			break
		}
	}
	if !ok {
		return q, apperrors.NewBadRequest("unsupported sort field " + q.Sort)
	}

	switch strings.ToLower(strings.TrimSpace(q.Order)) {
	case "", "desc":
		q.Order = "desc"
	case "asc":
		q.Order = "asc"
	default:
		return q, apperrors.NewBadRequest("order must be asc or desc")
	}
	return q, nil
}

// Offset is the number of rows to skip.
func (q Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// OrderBy renders the ORDER BY clause. Sort must have passed Normalize.
func (q Query) OrderBy() string {
	return q.Sort + " " + q.Order
}

// Page is one page of results with its navigation metadata.
type Page[T any] struct {
	Data       []T   `json:"data"`
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	NextPage   *int  `json:"next_page"`
	PrevPage   *int  `json:"prev_page"`
}

// NewPage computes the pagination metadata. totalPages is ceil(total/limit);
// the current page is clamped into [1, totalPages] for next/prev, which are
// nil at the boundaries.
func NewPage[T any](data []T, q Query, total int64) Page[T] {
	limit := q.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))

	current := q.Page
	if current > totalPages {
		current = totalPages
	}
	if current < 1 {
		current = 1
	}

	if data == nil {
		data = []T{}
	}
	p := Page[T]{
		Data:       data,
		Page:       q.Page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}
	if current < totalPages {
		next := current + 1
		p.NextPage = &next
	}
	if current > 1 {
		prev := current - 1
		p.PrevPage = &prev
	}
	return p
}
