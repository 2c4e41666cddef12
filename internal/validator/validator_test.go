package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exprep-backend/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	Setup()
}

func bindBody(t *testing.T, body string, dst any) map[string]string {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	return Bind(c, dst)
}

func TestBindRejectsUnknownStudyMode(t *testing.T) {
	var req model.CreateStudySessionRequest
	fields := bindBody(t, `{"exam_id":"6f1c1b8e-0b7e-4a36-9d59-0d7f5a1c2e11","mode":"cram","question_ids":[]}`, &req)
	require.NotNil(t, fields)
	assert.Contains(t, fields["mode"], "sequential")
}

func TestBindAcceptsStudyMode(t *testing.T) {
	var req model.CreateStudySessionRequest
	fields := bindBody(t, `{"exam_id":"6f1c1b8e-0b7e-4a36-9d59-0d7f5a1c2e11","mode":"weak_areas","question_ids":["x"]}`, &req)
	assert.Nil(t, fields)
	assert.Equal(t, model.StudyModeWeakAreas, req.Mode)
}

func TestBindSyntaxErrorUsesDetail(t *testing.T) {
	var req model.CreateStudySessionRequest
	fields := bindBody(t, `{`, &req)
	assert.Contains(t, fields, "detail")
}
