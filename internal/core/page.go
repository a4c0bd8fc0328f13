package core

const (
	DefaultPerPage = 50
	MaxPerPage     = 1000
)

// Page is one page of a listing.
type Page[T any] struct {
	Items   []T `json:"items"`
	Total   int `json:"total"`
	Pages   int `json:"pages"`
	Current int `json:"current_page"`
	PerPage int `json:"per_page"`
	Start   int `json:"start"`
	End     int `json:"end"`
}

// Paginate slices items into the requested page. Start and End are the
// 1-based positions of the first and last item returned (both 0 when the page
// is empty).
func Paginate[T any](items []T, page, perPage int) Page[T] {
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page < 1 {
		page = 1
	}

	total := len(items)
	p := Page[T]{
		Items:   []T{},
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
		Current: page,
		PerPage: perPage,
	}

	offset := (page - 1) * perPage
	if offset >= total {
		return p
	}
	end := min(offset+perPage, total)
	p.Items = append(p.Items, items[offset:end]...)
	p.Start = offset + 1
	p.End = end
	return p
}
