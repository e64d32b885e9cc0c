package common

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// PageMeta pagination metadata
type PageMeta struct {
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// NewPageMeta creates PageMeta with computed total_pages
func NewPageMeta(page, perPage int, total int64) *PageMeta {
	totalPages := total / int64(perPage)
	if total%int64(perPage) > 0 {
		totalPages++
	}
	return &PageMeta{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}
}

// NormalizePage applies pagination defaults
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > MaxPageSize {
		perPage = DefaultPageSize
	}
	return page, perPage
}

// Paginate slices items to the requested page window
func Paginate[T any](items []T, page, perPage int) ([]T, *PageMeta) {
	page, perPage = NormalizePage(page, perPage)
	meta := NewPageMeta(page, perPage, int64(len(items)))

	start := (page - 1) * perPage
	if start >= len(items) {
		return []T{}, meta
	}
	end := start + perPage
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], meta
}
