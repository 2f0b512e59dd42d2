package query

import (
	"strings"

	"github.com/asaidimu/go-crud/core"
)

const (
	DefaultLimit        = 100
	DefaultPage         = 1
	DefaultItemsPerPage = 10
)

// Pagination carries the offset mode arguments of a read. Offset/Limit and
// Page/ItemsPerPage are mutually exclusive. Leaving everything nil means offset 0,
// limit DefaultLimit.
//
// Unbounded fetches every matching row. Use it with care: nothing caps the size of
// the result.
type Pagination struct {
	Offset       *int
	Limit        *int
	Page         *int
	ItemsPerPage *int
	Unbounded    bool
}

// Window is a resolved offset window. Limit is nil for unbounded reads.
type Window struct {
	Offset       int
	Limit        *int
	Page         *int
	ItemsPerPage *int
}

// PageMode reports whether the window was expressed as page/items_per_page.
func (w Window) PageMode() bool {
	return w.Page != nil
}

// Resolve validates the pagination arguments and computes the window.
func (p Pagination) Resolve() (Window, error) {
	raw := p.Offset != nil || p.Limit != nil
	paged := p.Page != nil || p.ItemsPerPage != nil
	if raw && paged {
		return Window{}, core.NewConfigError("pagination", "cannot use both offset/limit and page/items_per_page")
	}
	if p.Unbounded && (p.Limit != nil || paged) {
		return Window{}, core.NewConfigError("pagination", "an unbounded read cannot also set limit or page/items_per_page")
	}

	if paged {
		page, perPage := DefaultPage, DefaultItemsPerPage
		if p.Page != nil {
			page = *p.Page
		}
		if p.ItemsPerPage != nil {
			perPage = *p.ItemsPerPage
		}
		if page < 1 {
			return Window{}, core.NewConfigError("page", "page must be 1 or greater, got %d", page)
		}
		if perPage < 1 {
			return Window{}, core.NewConfigError("items_per_page", "items_per_page must be 1 or greater, got %d", perPage)
		}
		limit := perPage
		return Window{Offset: (page - 1) * perPage, Limit: &limit, Page: &page, ItemsPerPage: &perPage}, nil
	}

	w := Window{}
	if p.Offset != nil {
		if *p.Offset < 0 {
			return Window{}, core.NewConfigError("offset", "limit and offset must be non-negative")
		}
		w.Offset = *p.Offset
	}
	if p.Unbounded {
		return w, nil
	}
	limit := DefaultLimit
	if p.Limit != nil {
		if *p.Limit < 0 {
			return Window{}, core.NewConfigError("limit", "limit and offset must be non-negative")
		}
		limit = *p.Limit
	}
	w.Limit = &limit
	return w, nil
}

// CursorPage carries the cursor mode arguments of a read.
type CursorPage struct {
	// Cursor is the boundary value returned as NextCursor by the previous page.
	Cursor any
	Limit  int
	// Column defaults to the first primary key column.
	Column string
	// Order is asc (default) or desc.
	Order string
}

// IsStartCursor reports whether the cursor means "start from the beginning".
func IsStartCursor(cursor any) bool {
	switch v := cursor.(type) {
	case nil:
		return true
	case bool:
		return v
	case string:
		s := strings.ToLower(v)
		return s == "" || s == "true" || s == "yes"
	}
	return false
}
