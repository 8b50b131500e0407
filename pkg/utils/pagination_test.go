package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePagination(t *testing.T) {
	cases := []struct {
		name         string
		page, size   string
		wantPage     int
		wantPageSize int
	}{
		{"defaults", "", "", 1, 20},
		{"explicit", "3", "50", 3, 50},
		{"capped", "1", "500", 1, 100},
		{"garbage", "abc", "xyz", 1, 20},
		{"non-positive", "0", "-5", 1, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			page, pageSize := ParsePagination(tc.page, tc.size)
			assert.Equal(t, tc.wantPage, page)
			assert.Equal(t, tc.wantPageSize, pageSize)
		})
	}
}
