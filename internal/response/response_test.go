package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPagination(t *testing.T) {
	tests := []struct {
		name                 string
		page, perPage, total int
		wantPages            int
		wantMore             bool
	}{
		{"empty", 1, 20, 0, 0, false},
		{"partial last page", 1, 2, 5, 3, true},
		{"last page", 3, 2, 5, 3, false},
		{"exact fit", 2, 5, 10, 2, false},
		{"zero page size", 1, 0, 4, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPagination(tt.page, tt.perPage, tt.total)
			assert.Equal(t, tt.wantPages, p.TotalPages)
			assert.Equal(t, tt.wantMore, p.HasMore)
			assert.Equal(t, tt.total, p.TotalItems)
		})
	}
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/ok", func(c *gin.Context) { Success(c, http.StatusOK, gin.H{"n": 1}) })
	r.GET("/fail", func(c *gin.Context) {
		FailWithFields(c, http.StatusBadRequest, ErrValidation, map[string]string{"exam_id": "required"})
	})
	return r
}

func TestRequestIDIsReusedOrMinted(t *testing.T) {
	r := newEngine()

	tests := []struct {
		name   string
		header string
		reused bool
	}{
		{"upstream id", "abc-123", true},
		{"missing", "", false},
		{"too long", strings.Repeat("x", 65), false},
		{"control characters", "bad\tid", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ok", nil)
			if tt.header != "" {
				req.Header.Set(HeaderRequestID, tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			var env Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			got := w.Header().Get(HeaderRequestID)
			assert.Equal(t, got, env.Metadata.RequestID)
			if tt.reused {
				assert.Equal(t, tt.header, got)
			} else {
				assert.Len(t, got, 36)
			}
		})
	}
}

func TestFailEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	newEngine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/fail", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var env Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Nil(t, env.Data)
	require.NotNil(t, env.Error)
	assert.Equal(t, ErrValidation, env.Error.Code)
	assert.Equal(t, GetMessage(ErrValidation), env.Error.Message)
	assert.Equal(t, "required", env.Error.Fields["exam_id"])
	assert.GreaterOrEqual(t, env.Metadata.ElapsedMS, int64(0))
}
