package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rm-3284/mle-bench-hpc/internal/history"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
	"github.com/rm-3284/mle-bench-hpc/internal/stats"
	"github.com/rm-3284/mle-bench-hpc/internal/uploads"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// validatorFunc adapta una función a SubmissionValidator
type validatorFunc func(ctx context.Context, path string, competition *models.Competition) (models.ValidationResult, error)

func (f validatorFunc) Validate(ctx context.Context, path string, competition *models.Competition) (models.ValidationResult, error) {
	return f(ctx, path, competition)
}

// echoValidator devuelve el contenido del archivo como mensaje
func echoValidator(delay time.Duration) validatorFunc {
	return func(ctx context.Context, path string, _ *models.Competition) (models.ValidationResult, error) {
		time.Sleep(delay)
		content, err := os.ReadFile(path)
		if err != nil {
			return models.ValidationResult{}, err
		}
		return models.ValidationResult{Valid: true, Message: string(content)}, nil
	}
}

// memoryHistory es un HistoryStore en memoria
type memoryHistory struct {
	mu      sync.Mutex
	records []models.ValidationRecord
}

func (m *memoryHistory) CreateValidation(_ context.Context, rec *models.ValidationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryHistory) GetValidation(_ context.Context, id string) (*models.ValidationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memoryHistory) ListValidations(_ context.Context, competitionID string, limit int) ([]models.ValidationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.ValidationRecord{}
	for i := len(m.records) - 1; i >= 0 && len(out) < limit; i-- {
		if m.records[i].CompetitionID == competitionID {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

type testServer struct {
	router   *gin.Engine
	spoolDir string
	stats    *stats.MemoryStore
	history  *memoryHistory
}

func newTestServer(t *testing.T, validator SubmissionValidator, withHistory bool) *testServer {
	t.Helper()

	spoolDir := t.TempDir()
	spool, err := uploads.NewSpool(spoolDir, 0)
	require.NoError(t, err)

	ts := &testServer{spoolDir: spoolDir, stats: stats.NewMemoryStore()}
	opts := Options{Stats: ts.stats}
	if withHistory {
		ts.history = &memoryHistory{}
		opts.History = ts.history
	}

	h := NewHandler(&models.Competition{ID: "spaceship-titanic"}, validator, spool, opts)

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	router.POST("/validate", h.Validate)
	router.GET("/api/v1/stats", h.GetStats)
	router.GET("/api/v1/validations", h.GetValidations)
	router.GET("/api/v1/validations/:id", h.GetValidation)
	ts.router = router
	return ts
}

func uploadRequest(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/validate", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func (ts *testServer) do(req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

// assertExclusiveBody verifica que el body tiene result xor error+details
func assertExclusiveBody(t *testing.T, body map[string]interface{}) {
	t.Helper()
	_, hasResult := body["result"]
	_, hasError := body["error"]
	_, hasDetails := body["details"]
	assert.True(t, hasResult != hasError, "body must contain result xor error: %v", body)
	assert.Equal(t, hasError, hasDetails, "error and details go together: %v", body)
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spooled submissions must be removed")
}

func TestHealthCheckBeforeValidate(t *testing.T) {
	ts := newTestServer(t, echoValidator(0), false)

	rec, body := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"status": "running", "competition": "spaceship-titanic"}, body)
}

func TestHealthCheckWithoutCompetition(t *testing.T) {
	spool, err := uploads.NewSpool(t.TempDir(), 0)
	require.NoError(t, err)
	h := NewHandler(nil, echoValidator(0), spool, Options{})

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"running","competition":null}`, rec.Body.String())
}

func TestValidateAccepted(t *testing.T) {
	ts := newTestServer(t, validatorFunc(func(_ context.Context, _ string, c *models.Competition) (models.ValidationResult, error) {
		assert.Equal(t, "spaceship-titanic", c.ID)
		return models.ValidationResult{Valid: true, Message: "Submission is valid."}, nil
	}), false)

	rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", "id,target\n1,0\n"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"result": "Submission is valid."}, body)
	assert.NotEmpty(t, rec.Header().Get(HeaderValidationID))
	assertSpoolEmpty(t, ts.spoolDir)
}

func TestValidateRejectedIsNotAnError(t *testing.T) {
	msg := "Submission invalid! Submission is missing the following columns: target."
	ts := newTestServer(t, validatorFunc(func(context.Context, string, *models.Competition) (models.ValidationResult, error) {
		return models.ValidationResult{Valid: false, Message: msg}, nil
	}), false)

	rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", "id\n1\n"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assertExclusiveBody(t, body)
	assert.Equal(t, msg, body["result"])
	assertSpoolEmpty(t, ts.spoolDir)
}

func TestValidateFault(t *testing.T) {
	ts := newTestServer(t, validatorFunc(func(context.Context, string, *models.Competition) (models.ValidationResult, error) {
		return models.ValidationResult{}, fmt.Errorf("failed to read submission: %w", errors.New("bare \" in non-quoted-field"))
	}), false)

	rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", "garbage"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assertExclusiveBody(t, body)
	assert.Equal(t, ErrorUnexpected, body["error"])
	assert.Contains(t, body["details"], "failed to read submission")
	assertSpoolEmpty(t, ts.spoolDir)

	// El servidor sigue sirviendo
	rec, _ = ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidatePanicBecomesFault(t *testing.T) {
	ts := newTestServer(t, validatorFunc(func(context.Context, string, *models.Competition) (models.ValidationResult, error) {
		panic("index out of range")
	}), false)

	rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", "x"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrorUnexpected, body["error"])
	assert.Contains(t, body["details"], "index out of range")
	assertSpoolEmpty(t, ts.spoolDir)
}

func TestValidateMissingFile(t *testing.T) {
	called := false
	ts := newTestServer(t, validatorFunc(func(context.Context, string, *models.Competition) (models.ValidationResult, error) {
		called = true
		return models.ValidationResult{}, nil
	}), false)

	rec, body := ts.do(uploadRequest(t, "other", "submission.csv", "x"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assertExclusiveBody(t, body)
	assert.Equal(t, ErrorNoFile, body["error"])
	assert.False(t, called)
}

func TestValidateSpoolFailureIsFault(t *testing.T) {
	dir := t.TempDir()
	spool, err := uploads.NewSpool(dir, 2)
	require.NoError(t, err)
	h := NewHandler(&models.Competition{ID: "c"}, echoValidator(0), spool, Options{})

	router := gin.New()
	router.POST("/validate", h.Validate)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, FormFileField, "submission.csv", "too large"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assertExclusiveBody(t, body)
	assert.Contains(t, body["details"], "too large")
}

func TestValidateCancelledRequestCleansUp(t *testing.T) {
	ts := newTestServer(t, validatorFunc(func(ctx context.Context, _ string, _ *models.Competition) (models.ValidationResult, error) {
		<-ctx.Done()
		return models.ValidationResult{}, ctx.Err()
	}), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", "x").WithContext(ctx))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, body["details"], "context canceled")
	assertSpoolEmpty(t, ts.spoolDir)
}

// Cada petición usa su propio archivo: las respuestas concurrentes nunca se mezclan.
func TestValidateConcurrentRequestsGetOwnPayload(t *testing.T) {
	ts := newTestServer(t, echoValidator(20*time.Millisecond), false)

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, body := ts.do(uploadRequest(t, FormFileField, "submission.csv", fmt.Sprintf("payload-%d", i)))
			codes[i] = rec.Code
			results[i], _ = body["result"].(string)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.Equal(t, http.StatusOK, codes[i])
		assert.Equal(t, fmt.Sprintf("payload-%d", i), results[i])
	}
	assertSpoolEmpty(t, ts.spoolDir)
}

func TestStatsEndpoint(t *testing.T) {
	verdicts := []models.ValidationResult{{Valid: true, Message: "ok"}, {Valid: false, Message: "bad"}}
	i := 0
	ts := newTestServer(t, validatorFunc(func(context.Context, string, *models.Competition) (models.ValidationResult, error) {
		if i >= len(verdicts) {
			return models.ValidationResult{}, errors.New("boom")
		}
		v := verdicts[i]
		i++
		return v, nil
	}), false)

	for j := 0; j < 3; j++ {
		ts.do(uploadRequest(t, FormFileField, "submission.csv", "x"))
	}

	rec, body := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "spaceship-titanic", body["competition"])
	assert.Equal(t, 3.0, body["total_requests"])
	assert.Equal(t, 1.0, body["total_accepted"])
	assert.Equal(t, 1.0, body["total_rejected"])
	assert.Equal(t, 1.0, body["total_faults"])
}

func TestValidationHistory(t *testing.T) {
	ts := newTestServer(t, echoValidator(0), true)

	rec, _ := ts.do(uploadRequest(t, FormFileField, "first.csv", "one"))
	firstID := rec.Header().Get(HeaderValidationID)
	require.NotEmpty(t, firstID)
	ts.do(uploadRequest(t, FormFileField, "second.csv", "two"))

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/validations/"+firstID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.ValidationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "first.csv", got.FileName)
	assert.Equal(t, models.VerdictAccepted, got.Verdict)
	assert.Equal(t, "one", got.Message)
	assert.Equal(t, int64(3), got.FileSize)

	rec = httptest.NewRecorder()
	ts.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/validations?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []models.ValidationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "second.csv", list[0].FileName)

	rec, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/validations/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/validations?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidationHistoryDisabled(t *testing.T) {
	ts := newTestServer(t, echoValidator(0), false)

	rec, _ := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/validations", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/validations/abc", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
