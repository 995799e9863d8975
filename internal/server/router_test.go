package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/corpuslabs/corpusd/internal/api/handlers"
	"github.com/corpuslabs/corpusd/internal/embedding"
	"github.com/corpuslabs/corpusd/internal/jobs"
	"github.com/corpuslabs/corpusd/internal/loader"
	"github.com/corpuslabs/corpusd/internal/notify"
	"github.com/corpuslabs/corpusd/internal/repository"
	"github.com/corpuslabs/corpusd/internal/service"
	"github.com/corpuslabs/corpusd/internal/vectorstore"
)

const testModel = "fake:router-test"

// lengthProvider embeds text by length so the whole stack runs without a
// live backend.
type lengthProvider struct {
	gate chan struct{} // non-nil blocks EmbedDocuments until closed
}

func (p *lengthProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (p *lengthProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type routerFixture struct {
	handler   http.Handler
	scheduler *jobs.Scheduler
	provider  *lengthProvider
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	repo := repository.NewMemoryKnowledgeRepository()
	store := vectorstore.New(repository.NewMemoryArena())
	provider := &lengthProvider{}

	providers := embedding.NewRegistry()
	providers.Register(testModel, provider)

	splitter, err := service.NewSplitter(service.DefaultChunkConfig())
	assert.NoError(t, err)

	loaders := loader.NewRegistry(loader.NewFetcher(t.TempDir(), nil))
	indexer := service.NewIndexer(repo, store, splitter, providers, loaders, notify.NewNopNotifier())
	retriever := service.NewRetriever(repo, store, providers)

	scheduler := jobs.NewScheduler(indexer)
	t.Cleanup(scheduler.Shutdown)

	handler := NewRouter(RouterConfig{
		KnowledgeHandler: handlers.NewKnowledgeHandler(indexer, scheduler, testModel),
		SearchHandler:    handlers.NewSearchHandler(retriever),
	})

	return &routerFixture{handler: handler, scheduler: scheduler, provider: provider}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *routerFixture) createKnowledge(t *testing.T, sources ...map[string]string) string {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/knowledge", map[string]any{
		"title":           "test knowledge",
		"embedding_model": testModel,
		"sources":         sources,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data handlers.KnowledgeResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data.ID
}

func inlineSourceBody(name, text string) map[string]string {
	return map[string]string{"filename": name, "type": "txt", "content": "text:" + text}
}

func TestRouter_Health(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRouter_KnowledgeCRUD(t *testing.T) {
	f := newRouterFixture(t)

	id := f.createKnowledge(t, inlineSourceBody("a.txt", "alpha"))

	rec := f.do(t, http.MethodGet, "/knowledge/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"pending"`)

	var getResp struct {
		Data handlers.KnowledgeResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &getResp))
	created, err := time.Parse(time.RFC3339, getResp.Data.CreatedAt)
	assert.NoError(t, err)
	assert.Equal(t, time.UTC, created.Location())

	rec = f.do(t, http.MethodGet, "/knowledge", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = f.do(t, http.MethodDelete, "/knowledge/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/knowledge/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_CreateValidation(t *testing.T) {
	f := newRouterFixture(t)

	rec := f.do(t, http.MethodPost, "/knowledge", map[string]any{"embedding_model": testModel})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/knowledge", map[string]any{
		"title":           "x",
		"embedding_model": "nope:missing",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "CONFIGURATION_ERROR")
}

func TestRouter_ProcessAndSearch(t *testing.T) {
	f := newRouterFixture(t)

	id := f.createKnowledge(t,
		inlineSourceBody("a.txt", "short"),
		inlineSourceBody("b.txt", "a considerably longer body of text"),
	)

	rec := f.do(t, http.MethodPost, "/knowledge/"+id+"/process", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.scheduler.Wait()

	rec = f.do(t, http.MethodGet, "/knowledge/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"finished"`)

	rec = f.do(t, http.MethodPost, "/knowledge/"+id+"/search", map[string]any{
		"query": "short",
		"top_k": 1,
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data handlers.SearchResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "short", resp.Data.Results[0].Content)
}

func TestRouter_SearchBeforeProcessingIsConflict(t *testing.T) {
	f := newRouterFixture(t)

	id := f.createKnowledge(t, inlineSourceBody("a.txt", "alpha"))

	rec := f.do(t, http.MethodPost, "/knowledge/"+id+"/search", map[string]any{"query": "alpha"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_READY")
}

func TestRouter_DoubleProcessIsConflict(t *testing.T) {
	f := newRouterFixture(t)
	f.provider.gate = make(chan struct{})

	id := f.createKnowledge(t, inlineSourceBody("a.txt", "alpha"))

	rec := f.do(t, http.MethodPost, "/knowledge/"+id+"/process", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = f.do(t, http.MethodPost, "/knowledge/"+id+"/process", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	close(f.provider.gate)
	f.scheduler.Wait()

	// Finished knowledge can be reprocessed.
	f.provider.gate = nil
	rec = f.do(t, http.MethodPost, "/knowledge/"+id+"/process", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	f.scheduler.Wait()
}

func TestRouter_SourceLifecycle(t *testing.T) {
	f := newRouterFixture(t)

	id := f.createKnowledge(t, inlineSourceBody("a.txt", "alpha"))

	rec := f.do(t, http.MethodPost, "/knowledge/"+id+"/sources", inlineSourceBody("b.txt", "beta"))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Data handlers.SourceResponse `json:"data"`
	}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Data.ID)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/knowledge/%s/sources/%s", id, resp.Data.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/knowledge/%s/sources/%s", id, resp.Data.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRouter_ProcessUnknownKnowledge(t *testing.T) {
	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/knowledge/unknown/process", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
