package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uva-clima/go-inmet/pkg/ingest"
	"github.com/uva-clima/go-inmet/pkg/rawstore"
)

type stubWriter struct {
	result rawstore.AppendResult
	err    error
	key    string
	line   string
}

func (s *stubWriter) AppendLine(_ context.Context, key, _, line string) (rawstore.AppendResult, error) {
	s.key, s.line = key, line
	return s.result, s.err
}

func (s *stubWriter) PutEnvelope(_ context.Context, key string, _ []byte) (rawstore.AppendResult, error) {
	s.key = key
	return s.result, s.err
}

type stubLister struct {
	keys []string
	err  error
}

func (s *stubLister) List(context.Context) ([]string, error) { return s.keys, s.err }

func newTestRouter(t *testing.T, writer *stubWriter, lister ObjectLister) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := ingest.NewService(writer, ingest.ServiceConfig{Mode: ingest.ModeCSV}, zerolog.Nop())
	require.NoError(t, err)

	server, err := NewServer(svc, lister, zerolog.Nop())
	require.NoError(t, err)
	return server.Router()
}

func TestHandleEvent_Success(t *testing.T) {
	writer := &stubWriter{result: rawstore.ResultAppended}
	router := newTestRouter(t, writer, nil)

	body := `{"ts":1752494400000,"values":{"temp_ar":25.5}}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/inmet/a701", strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "inmet/a701/2025/07/202507.csv", resp["object"])
	assert.Equal(t, "appended", resp["outcome"])
	assert.Equal(t, "inmet/a701/2025/07/202507.csv", writer.key)
}

func TestHandleEvent_SchemaDriftIsConflict(t *testing.T) {
	writer := &stubWriter{err: rawstore.ErrSchemaDrift}
	router := newTestRouter(t, writer, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/inmet/a701", strings.NewReader(`{"ts":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleEvent_StorageFailureIsBadGateway(t *testing.T) {
	writer := &stubWriter{err: errors.New("bucket unreachable")}
	router := newTestRouter(t, writer, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/inmet/a701", strings.NewReader(`{"ts":1}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleEvent_RawLineBodyAccepted(t *testing.T) {
	writer := &stubWriter{result: rawstore.ResultCreated}
	router := newTestRouter(t, writer, nil)

	req := httptest.NewRequest(http.MethodPost, "/webhook/inmet/a701", strings.NewReader("2025-07-14T12:00:00,25.5,80,,,,1013.2"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2025-07-14T12:00:00,25.5,80,,,,1013.2", writer.line)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &stubWriter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListObjects(t *testing.T) {
	lister := &stubLister{keys: []string{
		"inmet/a701/2025/07/202507.csv",
		"inmet/a702/2025/07/202507.csv",
	}}
	router := newTestRouter(t, &stubWriter{}, lister)

	req := httptest.NewRequest(http.MethodGet, "/objects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Total   int      `json:"total"`
		Objects []string `json:"objects"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, lister.keys, resp.Objects)
}

func TestListObjects_DisabledWithoutLister(t *testing.T) {
	router := newTestRouter(t, &stubWriter{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/objects", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
