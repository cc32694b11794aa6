package server

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/promptreel/promptreel-api/internal/job"
	"github.com/promptreel/promptreel-api/internal/provider"
)

const testJobID = "3f2c1a84-9d6b-4e2f-8c7a-1b2c3d4e5f60"

// mockJobService implements JobService for testing.
type mockJobService struct {
	mock.Mock
}

func (m *mockJobService) Create(ctx context.Context, requestedProvider string, input provider.Input) (*job.Job, error) {
	args := m.Called(ctx, requestedProvider, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobService) Get(ctx context.Context, id string) (*job.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*job.Job), args.Error(1)
}

func (m *mockJobService) ReconcileWebhook(ctx context.Context, providerJobID string, status job.Status, output *provider.Output, errMsg string) (*job.Job, bool, error) {
	args := m.Called(ctx, providerJobID, status, output, errMsg)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*job.Job), args.Bool(1), args.Error(2)
}

// fakeStore is an in-memory ObjectStore for handler tests.
type fakeStore struct {
	objects map[string][]byte
	failPut bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Upload(_ context.Context, key string, body io.Reader, _ string) error {
	if s.failPut {
		return io.ErrClosedPipe
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *fakeStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://storage.test/" + key + "?sig=abc", nil
}

func newTestHandlers(svc JobService, store *fakeStore, secret string) *Handlers {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHandlers(svc, store, secret, logger)
}

func createJobBody() string {
	return `{
		"input": {
			"modelCode": "Lucy14b",
			"prompt": "a cat",
			"file": {
				"path": "20250101/cat.png",
				"signedUrl": "https://storage.test/cat.png?sig=abc",
				"mime": "image/png",
				"size": 2048
			}
		}
	}`
}

func TestHealth(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.Health(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestCreateJob_Success(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Create", mock.Anything, "", mock.MatchedBy(func(in provider.Input) bool {
		return in.ModelCode == "Lucy14b" && in.File.Path == "20250101/cat.png"
	})).Return(&job.Job{ID: testJobID, Status: job.StatusRunning, ModelCode: "Lucy14b"}, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(createJobBody()))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp CreateJobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testJobID, resp.ID)
	assert.Equal(t, "Lucy14b", resp.ModelCode)
	svc.AssertExpectations(t)
}

func TestCreateJob_InvalidJSON(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "failed", resp.Status)
}

func TestCreateJob_MissingModelCode(t *testing.T) {
	svc := &mockJobService{}
	h := newTestHandlers(svc, newFakeStore(), "secret")

	body := `{"input": {"file": {"path": "a", "mime": "image/png", "size": 1}}}`
	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateJob_UnknownModel(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Create", mock.Anything, "", mock.Anything).Return(nil, provider.ErrUnknownProvider)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(createJobBody()))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_ProviderNotConfigured(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Create", mock.Anything, "", mock.Anything).
		Return(nil, &provider.ConfigurationError{Provider: "lucy14b", Missing: "FAL_API_KEY"})

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/jobs", strings.NewReader(createJobBody()))
	rec := httptest.NewRecorder()
	h.CreateJob(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetJob_Success(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Get", mock.Anything, testJobID).Return(&job.Job{
		ID:        testJobID,
		Status:    job.StatusSucceeded,
		ModelCode: "Lucy14b",
		Output:    &provider.Output{URL: "https://cdn.test/out.mp4"},
	}, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+testJobID, nil)
	req.SetPathValue("id", testJobID)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp JobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)
	require.NotNil(t, resp.Output)
	assert.Equal(t, "https://cdn.test/out.mp4", resp.Output.URL)
}

func TestGetJob_InvalidUUID(t *testing.T) {
	svc := &mockJobService{}
	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
	req.SetPathValue("id", "not-a-uuid")
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestGetJob_NotFound(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Get", mock.Anything, testJobID).Return(nil, job.ErrJobNotFound)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodGet, "/jobs/"+testJobID, nil)
	req.SetPathValue("id", testJobID)
	rec := httptest.NewRecorder()
	h.GetJob(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func signBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhook_Success(t *testing.T) {
	body := `{"request_id": "req-1", "status": "completed", "output": {"url": "https://cdn.test/out.mp4"}}`

	svc := &mockJobService{}
	svc.On("ReconcileWebhook", mock.Anything, "req-1", job.StatusSucceeded, mock.Anything, "").
		Return(&job.Job{ID: testJobID, Status: job.StatusSucceeded}, true, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Signature-Sha256", signBody(body, "secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, testJobID, resp.JobID)
	assert.Equal(t, "succeeded", resp.Status)
	svc.AssertExpectations(t)
}

func TestWebhook_AcceptsPrefixedSignatureHeader(t *testing.T) {
	body := `{"request_id": "req-1", "status": "failed", "error": "boom"}`

	svc := &mockJobService{}
	svc.On("ReconcileWebhook", mock.Anything, "req-1", job.StatusFailed, mock.Anything, "boom").
		Return(&job.Job{ID: testJobID, Status: job.StatusFailed}, true, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256="+signBody(body, "secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestWebhook_FailureWithoutMessageGetsDefault(t *testing.T) {
	body := `{"request_id": "req-1", "status": "failed"}`

	svc := &mockJobService{}
	svc.On("ReconcileWebhook", mock.Anything, "req-1", job.StatusFailed, mock.Anything, "Provider processing failed").
		Return(&job.Job{ID: testJobID, Status: job.StatusFailed}, true, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Signature-Sha256", signBody(body, "secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestWebhook_BadSignature(t *testing.T) {
	body := `{"request_id": "req-1", "status": "completed"}`

	svc := &mockJobService{}
	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Signature-Sha256", signBody(body, "wrong-secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	svc.AssertNotCalled(t, "ReconcileWebhook",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestWebhook_MissingSignature(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal",
		strings.NewReader(`{"request_id": "req-1", "status": "completed"}`))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhook_SecretNotConfigured(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWebhook_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing request_id", `{"status": "completed"}`},
		{"missing status", `{"request_id": "req-1"}`},
		{"unknown status", `{"request_id": "req-1", "status": "exploded"}`},
		{"not JSON", `not json at all`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

			req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(tt.body))
			req.Header.Set("X-Signature-Sha256", signBody(tt.body, "secret"))
			rec := httptest.NewRecorder()
			h.Webhook(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestWebhook_AlreadyTerminal(t *testing.T) {
	body := `{"request_id": "req-1", "status": "completed"}`

	svc := &mockJobService{}
	svc.On("ReconcileWebhook", mock.Anything, "req-1", job.StatusSucceeded, mock.Anything, "").
		Return(&job.Job{ID: testJobID, Status: job.StatusSucceeded}, false, nil)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Signature-Sha256", signBody(body, "secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Job already completed", resp.Message)
}

func TestWebhook_UnknownHandle(t *testing.T) {
	body := `{"request_id": "req-unknown", "status": "completed"}`

	svc := &mockJobService{}
	svc.On("ReconcileWebhook", mock.Anything, "req-unknown", job.StatusSucceeded, mock.Anything, "").
		Return(nil, false, job.ErrJobNotFound)

	h := newTestHandlers(svc, newFakeStore(), "secret")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/fal", strings.NewReader(body))
	req.Header.Set("X-Signature-Sha256", signBody(body, "secret"))
	rec := httptest.NewRecorder()
	h.Webhook(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// pngBytes is a minimal PNG header, enough for content sniffing.
func pngBytes() []byte {
	return []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}
}

func multipartBody(t *testing.T, fieldName, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fieldName, fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestUpload_Success(t *testing.T) {
	store := newFakeStore()
	h := newTestHandlers(&mockJobService{}, store, "secret")

	body, contentType := multipartBody(t, "file", "cat.png", pngBytes())
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp.Status)
	assert.Equal(t, "image/png", resp.MIME)
	assert.Equal(t, int64(len(pngBytes())), resp.Size)
	assert.Contains(t, resp.SignedURL, resp.Path)
	assert.True(t, strings.HasSuffix(resp.Path, ".png"))

	// Stored under yyyymmdd/<uuid>.<ext>.
	require.Len(t, store.objects, 1)
	for key := range store.objects {
		parts := strings.SplitN(key, "/", 2)
		require.Len(t, parts, 2)
		assert.Len(t, parts[0], 8)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

	body, contentType := multipartBody(t, "wrong-field", "cat.png", pngBytes())
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_DisallowedType(t *testing.T) {
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")

	// Plain text is sniffed from content regardless of the filename.
	body, contentType := multipartBody(t, "file", "cat.png", []byte("just some text"))
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpload_StoreFailure(t *testing.T) {
	store := newFakeStore()
	store.failPut = true
	h := newTestHandlers(&mockJobService{}, store, "secret")

	body, contentType := multipartBody(t, "file", "cat.png", pngBytes())
	req := httptest.NewRequest(http.MethodPost, "/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRouter_MethodRouting(t *testing.T) {
	svc := &mockJobService{}
	svc.On("Get", mock.Anything, testJobID).Return(&job.Job{ID: testJobID, Status: job.StatusRunning}, nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newTestHandlers(svc, newFakeStore(), "secret")
	router := NewRouter(h, logger, DefaultConfig())

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/health", http.StatusOK},
		{http.MethodGet, "/jobs/" + testJobID, http.StatusOK},
		{http.MethodDelete, "/jobs/" + testJobID, http.StatusMethodNotAllowed},
		{http.MethodGet, "/webhooks/fal", http.StatusMethodNotAllowed},
		{http.MethodGet, "/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRouter_RequestIDHeader(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newTestHandlers(&mockJobService{}, newFakeStore(), "secret")
	router := NewRouter(h, logger, DefaultConfig())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	// A caller-supplied id is echoed back.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}
