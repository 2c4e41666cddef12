package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the API envelope. Exactly one of Data or Error is set.
type Response struct {
	Data       any         `json:"data"`
	Error      *ErrorBody  `json:"error,omitempty"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Metadata   Metadata    `json:"metadata"`
}

// ErrorBody is a typed error. Fields carries per-field validation messages
// or, for INVALID_INPUT, the service error under "detail".
type ErrorBody struct {
	Code    ErrCode           `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Pagination describes one page of a listing such as a test history.
type Pagination struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalItems int  `json:"total_items"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
}

// NewPagination builds page metadata for a 1-based page of perPage items
// out of total.
func NewPagination(page, perPage, total int) *Pagination {
	p := &Pagination{Page: page, PerPage: perPage, TotalItems: total}
	if perPage > 0 {
		p.TotalPages = (total + perPage - 1) / perPage
	}
	p.HasMore = page < p.TotalPages
	return p
}

// Metadata ties a response to its request.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// ─── Builders ───────────────────────────────────────────────────────

// Success writes data with statusCode.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{Data: data, Metadata: buildMetadata(c)})
}

// SuccessPage writes one page of a listing.
func SuccessPage(c *gin.Context, data any, pagination *Pagination) {
	c.JSON(http.StatusOK, Response{Data: data, Pagination: pagination, Metadata: buildMetadata(c)})
}

// Fail writes an error with the default message for code.
func Fail(c *gin.Context, statusCode int, code ErrCode) {
	c.JSON(statusCode, errorResponse(c, code, nil))
}

// FailWithFields writes an error with field-level details.
func FailWithFields(c *gin.Context, statusCode int, code ErrCode, fields map[string]string) {
	c.JSON(statusCode, errorResponse(c, code, fields))
}

// AbortFail stops the middleware chain with an error.
func AbortFail(c *gin.Context, statusCode int, code ErrCode) {
	c.AbortWithStatusJSON(statusCode, errorResponse(c, code, nil))
}

func errorResponse(c *gin.Context, code ErrCode, fields map[string]string) Response {
	return Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code), Fields: fields},
		Metadata: buildMetadata(c),
	}
}

func buildMetadata(c *gin.Context) Metadata {
	now := time.Now().UTC()
	md := Metadata{
		RequestID: RequestID(c),
		Timestamp: now.Format(time.RFC3339),
	}
	if start, ok := c.Get(ContextKeyRequestStart); ok {
		if t, ok := start.(time.Time); ok {
			md.ElapsedMS = now.Sub(t).Milliseconds()
		}
	}
	return md
}
