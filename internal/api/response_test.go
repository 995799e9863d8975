package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/corpuslabs/corpusd/internal/domain"
)

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", domain.NewDomainError(domain.ErrCodeValidation, "bad input"), http.StatusBadRequest},
		{"configuration", domain.ErrUnknownProvider, http.StatusBadRequest},
		{"not found", domain.ErrKnowledgeNotFound, http.StatusNotFound},
		{"not ready", domain.ErrKnowledgeNotReady, http.StatusConflict},
		{"conflict", domain.ErrProcessingInFlight, http.StatusConflict},
		{"timeout", domain.NewTimeoutError("deadline", nil), http.StatusGatewayTimeout},
		{"loader", domain.NewLoaderError("a.txt", errors.New("no such file")), http.StatusInternalServerError},
		{"embedding", domain.NewEmbeddingError("backend down", nil), http.StatusInternalServerError},
		{"persistence", domain.NewPersistenceError("write failed", nil), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped domain error", fmt.Errorf("processing: %w", domain.ErrSourceNotFound), http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError_IncludesCode(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.ErrKnowledgeNotReady)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"code":"NOT_READY"`)
	assert.Contains(t, rec.Body.String(), "not finished indexing")
}

func TestHandleError_PlainError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"boom"`)
	assert.NotContains(t, rec.Body.String(), `"code"`)
}

func TestSuccess_WrapsData(t *testing.T) {
	rec := httptest.NewRecorder()
	Success(rec, http.StatusCreated, map[string]string{"id": "k-1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"data":{"id":"k-1"}`)
}
