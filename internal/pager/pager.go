// Package pager computes page bounds over a ranked candidate set and carries
// the current page between requests in a signed cursor.
package pager

import (
	"errors"
	"fmt"
)

// ErrInvalidNavigation is returned for navigation tokens other than next, back or empty.
var ErrInvalidNavigation = errors.New("invalid navigation")

// Navigation is a pagination move requested by the caller.
type Navigation string

const (
	None Navigation = ""
	Next Navigation = "next"
	Back Navigation = "back"
)

// ParseNavigation accepts exactly "next", "back" or the empty string.
func ParseNavigation(token string) (Navigation, error) {
	switch nav := Navigation(token); nav {
	case None, Next, Back:
		return nav, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrInvalidNavigation, token)
	}
}

// State is the outcome of one pagination step.
type State struct {
	CurrentPage int  `json:"current_page"`
	TotalPages  int  `json:"total_pages"`
	HasNext     bool `json:"has_next"`
	HasBack     bool `json:"has_back"`
}

// TotalPages returns min(ceil(n/pageSize), maxPages). maxPages <= 0 means no cap.
func TotalPages(n, pageSize, maxPages int) int {
	if n <= 0 || pageSize <= 0 {
		return 0
	}
	total := (n + pageSize - 1) / pageSize
	if maxPages > 0 {
		total = min(total, maxPages)
	}
	return total
}

// Paginate applies nav to current over a set of n items.
//
// totalPages is recomputed from n on every call and current is clamped into
// [1, max(totalPages, 1)] before nav is applied, so a cursor issued against a
// larger set never points past the end. next at the last page and back at the
// first page are no-ops.
func Paginate(n, pageSize, maxPages, current int, nav Navigation) State {
	total := TotalPages(n, pageSize, maxPages)

	current = max(current, 1)
	current = min(current, max(total, 1))

	switch nav {
	case Next:
		if current < total {
			current++
		}
	case Back:
		if current > 1 {
			current--
		}
	}

	return State{
		CurrentPage: current,
		TotalPages:  total,
		HasNext:     current < total,
		HasBack:     current > 1,
	}
}

// Bounds returns the half-open range [lo, hi) of page within n items.
func Bounds(n, pageSize, page int) (lo, hi int) {
	if n <= 0 || pageSize <= 0 || page < 1 {
		return 0, 0
	}
	lo = min((page-1)*pageSize, n)
	hi = min(page*pageSize, n)
	return lo, hi
}

// Slice returns the items on page.
func Slice[T any](items []T, pageSize, page int) []T {
	lo, hi := Bounds(len(items), pageSize, page)
	return items[lo:hi]
}
