package utils

import "strconv"

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ParsePagination normalizes page/page_size query values. Invalid or
// missing values fall back to page 1 and the default size; page_size is
// capped at MaxPageSize.
func ParsePagination(pageStr, pageSizeStr string) (int, int) {
	page := 1
	if pageStr != "" {
		if v, err := strconv.Atoi(pageStr); err == nil && v > 0 {
			page = v
		}
	}

	pageSize := DefaultPageSize
	if pageSizeStr != "" {
		if v, err := strconv.Atoi(pageSizeStr); err == nil && v > 0 {
			pageSize = v
		}
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	return page, pageSize
}
