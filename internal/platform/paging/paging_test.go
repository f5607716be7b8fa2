package paging

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFromQuery(t *testing.T) {
	tests := []struct {
		query string
		want  Page
	}{
		{"", Page{Limit: 50, Offset: 0, Order: "desc"}},
		{"?limit=10&offset=20&order=ASC", Page{Limit: 10, Offset: 20, Order: "asc"}},
		{"?limit=abc&offset=-5&order=sideways", Page{Limit: 50, Offset: 0, Order: "desc"}},
		{"?limit=1000", Page{Limit: 200, Offset: 0, Order: "desc"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/x"+tt.query, nil)
			assert.Equal(t, tt.want, FromQuery(c))
		})
	}
}

func TestNextOffset(t *testing.T) {
	assert.Equal(t, 10, NextOffset(25, Page{Limit: 10, Offset: 0}))
	assert.Equal(t, 0, NextOffset(25, Page{Limit: 10, Offset: 20}))
	assert.Equal(t, 0, NextOffset(0, Page{Limit: 10}))
}

func TestResponse_NilItems(t *testing.T) {
	var items []string
	h := Response(items, 0, Page{Limit: 10})
	assert.Equal(t, []string{}, h["items"])
}
