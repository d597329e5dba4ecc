package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intentflow/intentflow/internal/api/handler"
	"github.com/intentflow/intentflow/internal/pipeline"
	"github.com/intentflow/intentflow/internal/store"
	"github.com/intentflow/intentflow/pkg/models"
)

type mockSubmitter struct {
	submission *pipeline.BatchSubmission
	err        error
	gotDrafts  []models.TicketDraft
}

func (m *mockSubmitter) SubmitBatch(_ context.Context, drafts []models.TicketDraft) (*pipeline.BatchSubmission, error) {
	m.gotDrafts = drafts
	if m.err != nil {
		return nil, m.err
	}
	return m.submission, nil
}

type mockBatchReader struct {
	batch *models.Batch
	err   error
}

func (m *mockBatchReader) GetBatch(_ context.Context, _ uuid.UUID) (*models.Batch, error) {
	return m.batch, m.err
}

func urlParamRequest(req *http.Request, name, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(name, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)["code"].(string)
}

func TestSubmitBatch_Accepted(t *testing.T) {
	submission := &pipeline.BatchSubmission{
		BatchID:        uuid.New(),
		FinalizerJobID: uuid.New(),
	}
	svc := &mockSubmitter{submission: submission}
	h := handler.NewSubmitBatchHandler(svc)

	body := `{"tickets": [{"subject": "Refund request", "body": "I want my money back"}]}`
	req := httptest.NewRequest("POST", "/api/v1/batches", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.gotDrafts, 1)
	assert.Equal(t, "Refund request", svc.gotDrafts[0].Subject)

	var resp struct {
		Data pipeline.BatchSubmission `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, submission.BatchID, resp.Data.BatchID)
	assert.Equal(t, submission.FinalizerJobID, resp.Data.FinalizerJobID)
}

func TestSubmitBatch_InvalidJSON(t *testing.T) {
	h := handler.NewSubmitBatchHandler(&mockSubmitter{})

	req := httptest.NewRequest("POST", "/api/v1/batches", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, w))
}

func TestSubmitBatch_EmptyTickets(t *testing.T) {
	h := handler.NewSubmitBatchHandler(&mockSubmitter{})

	req := httptest.NewRequest("POST", "/api/v1/batches", strings.NewReader(`{"tickets": []}`))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitBatch_BlankTicketRejected(t *testing.T) {
	svc := &mockSubmitter{}
	h := handler.NewSubmitBatchHandler(svc)

	body := `{"tickets": [{"subject": "ok", "body": "fine"}, {"subject": "  ", "body": ""}]}`
	req := httptest.NewRequest("POST", "/api/v1/batches", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, svc.gotDrafts)
}

func TestSubmitBatch_ServiceError(t *testing.T) {
	svc := &mockSubmitter{err: assert.AnError}
	h := handler.NewSubmitBatchHandler(svc)

	body := `{"tickets": [{"subject": "a", "body": "b"}]}`
	req := httptest.NewRequest("POST", "/api/v1/batches", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, w))
}

func TestSubmitCSV_Accepted(t *testing.T) {
	submission := &pipeline.BatchSubmission{BatchID: uuid.New()}
	svc := &mockSubmitter{submission: submission}
	h := handler.NewSubmitCSVHandler(svc)

	csv := "subject,body\nLogin broken,Cannot sign in since yesterday\nRefund,Charged twice\n"
	req := httptest.NewRequest("POST", "/api/v1/batches/csv", strings.NewReader(csv))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, svc.gotDrafts, 2)
	assert.Equal(t, "Login broken", svc.gotDrafts[0].Subject)
	assert.Equal(t, "Charged twice", svc.gotDrafts[1].Body)
}

func TestSubmitCSV_MissingHeader(t *testing.T) {
	svc := &mockSubmitter{}
	h := handler.NewSubmitCSVHandler(svc)

	req := httptest.NewRequest("POST", "/api/v1/batches/csv", strings.NewReader("foo,bar\n1,2\n"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CSV", errorCode(t, w))
	assert.Nil(t, svc.gotDrafts)
}

func TestSubmitCSV_EmptyFile(t *testing.T) {
	h := handler.NewSubmitCSVHandler(&mockSubmitter{})

	req := httptest.NewRequest("POST", "/api/v1/batches/csv", strings.NewReader(""))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CSV", errorCode(t, w))
}

func TestGetBatch_Found(t *testing.T) {
	batch := &models.Batch{
		ID:             uuid.New(),
		Status:         models.BatchStatusCompleted,
		FinalizerJobID: uuid.New(),
		TicketCount:    5,
		UniqueIntents:  2,
		GenerationJobs: 2,
	}
	h := handler.NewGetBatchHandler(&mockBatchReader{batch: batch})

	req := httptest.NewRequest("GET", "/api/v1/batches/"+batch.ID.String(), nil)
	req = urlParamRequest(req, "batchID", batch.ID.String())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data models.Batch `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, batch.ID, resp.Data.ID)
	assert.Equal(t, 2, resp.Data.UniqueIntents)
}

func TestGetBatch_NotFound(t *testing.T) {
	h := handler.NewGetBatchHandler(&mockBatchReader{err: store.ErrNotFound})

	id := uuid.NewString()
	req := httptest.NewRequest("GET", "/api/v1/batches/"+id, nil)
	req = urlParamRequest(req, "batchID", id)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestGetBatch_InvalidID(t *testing.T) {
	h := handler.NewGetBatchHandler(&mockBatchReader{})

	req := httptest.NewRequest("GET", "/api/v1/batches/not-a-uuid", nil)
	req = urlParamRequest(req, "batchID", "not-a-uuid")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
