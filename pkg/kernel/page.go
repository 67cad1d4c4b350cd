package kernel

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page represents pagination metadata
type Page struct {
	Number int `json:"page"`      // Current page number (1-based)
	Size   int `json:"page_size"` // Number of records per page
	Total  int `json:"total"`     // Total number of records
	Pages  int `json:"pages"`     // Total number of pages
}

// Paginated is a generic container for paginated data with metadata
type Paginated[T any] struct {
	Items []T  `json:"items"`
	Page  Page `json:"pagination"`
	Empty bool `json:"empty"`
}

// NewPaginated creates a new paginated result with calculated fields
func NewPaginated[T any](items []T, opts PaginationOptions, total int) Paginated[T] {
	opts = opts.Normalize()
	pages := (total + opts.PageSize - 1) / opts.PageSize

	if items == nil {
		items = []T{}
	}
	return Paginated[T]{
		Items: items,
		Page: Page{
			Number: opts.Page,
			Size:   opts.PageSize,
			Total:  total,
			Pages:  pages,
		},
		Empty: len(items) == 0,
	}
}

// HasNext returns whether there are more pages after the current one
func (p Paginated[T]) HasNext() bool {
	return p.Page.Number < p.Page.Pages
}

// HasPrevious returns whether there are pages before the current one
func (p Paginated[T]) HasPrevious() bool {
	return p.Page.Number > 1
}

// PaginationOptions holds options for pagination queries
type PaginationOptions struct {
	Page     int `query:"page"`
	PageSize int `query:"page_size"`
}

// Normalize clamps the options to page >= 1 and 1 <= size <= MaxPageSize
func (o PaginationOptions) Normalize() PaginationOptions {
	if o.Page < 1 {
		o.Page = 1
	}
	switch {
	case o.PageSize < 1:
		o.PageSize = DefaultPageSize
	case o.PageSize > MaxPageSize:
		o.PageSize = MaxPageSize
	}
	return o
}

// Offset is the number of records to skip
func (o PaginationOptions) Offset() int {
	o = o.Normalize()
	return (o.Page - 1) * o.PageSize
}
