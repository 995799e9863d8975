package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corpuslabs/corpusd/internal/api"
	"github.com/corpuslabs/corpusd/internal/domain"
	"github.com/corpuslabs/corpusd/internal/service"
)

type IndexerService interface {
	CreateKnowledge(ctx context.Context, input service.CreateKnowledgeInput) (*domain.Knowledge, error)
	GetKnowledge(ctx context.Context, id string) (*domain.Knowledge, error)
	ListKnowledge(ctx context.Context) ([]*domain.Knowledge, error)
	DeleteKnowledge(ctx context.Context, id string) error
	AddSource(ctx context.Context, knowledgeID string, input service.SourceInput) (domain.Source, error)
	DeleteSource(ctx context.Context, knowledgeID, sourceID string) error
}

// ProcessScheduler dispatches background processing runs.
type ProcessScheduler interface {
	Trigger(knowledgeID string) error
	InFlight(knowledgeID string) bool
}

type KnowledgeHandler struct {
	svc       IndexerService
	scheduler ProcessScheduler
	// defaultModel backs create requests that omit embedding_model.
	defaultModel string
}

func NewKnowledgeHandler(svc IndexerService, scheduler ProcessScheduler, defaultModel string) *KnowledgeHandler {
	return &KnowledgeHandler{svc: svc, scheduler: scheduler, defaultModel: defaultModel}
}

type SourceRequest struct {
	Filename string `json:"filename"`
	Type     string `json:"type"`
	Content  string `json:"content"`
}

type CreateKnowledgeRequest struct {
	Title          string          `json:"title"`
	EmbeddingModel string          `json:"embedding_model"`
	Sources        []SourceRequest `json:"sources"`
}

type SourceResponse struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Type     string `json:"type"`
}

type KnowledgeResponse struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	EmbeddingModel string           `json:"embedding_model"`
	Status         string           `json:"status"`
	Processing     bool             `json:"processing"`
	Sources        []SourceResponse `json:"sources"`
	CreatedAt      string           `json:"created_at"`
	UpdatedAt      string           `json:"updated_at"`
}

func (h *KnowledgeHandler) knowledgeToResponse(k *domain.Knowledge) *KnowledgeResponse {
	sources := make([]SourceResponse, len(k.Sources))
	for i, s := range k.Sources {
		sources[i] = SourceResponse{ID: s.ID, Filename: s.Filename, Type: string(s.Type)}
	}
	return &KnowledgeResponse{
		ID:             k.ID,
		Title:          k.Title,
		EmbeddingModel: k.EmbeddingModel,
		Status:         string(k.Status),
		Processing:     h.scheduler.InFlight(k.ID),
		Sources:        sources,
		CreatedAt:      k.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      k.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *KnowledgeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateKnowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.EmbeddingModel == "" {
		req.EmbeddingModel = h.defaultModel
	}
	if req.EmbeddingModel == "" {
		api.Error(w, http.StatusBadRequest, "embedding_model is required")
		return
	}

	input := service.CreateKnowledgeInput{
		Title:          req.Title,
		EmbeddingModel: req.EmbeddingModel,
	}
	for _, s := range req.Sources {
		input.Sources = append(input.Sources, service.SourceInput{
			Filename: s.Filename,
			Type:     s.Type,
			Content:  s.Content,
		})
	}

	knowledge, err := h.svc.CreateKnowledge(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, h.knowledgeToResponse(knowledge))
}

func (h *KnowledgeHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	knowledge, err := h.svc.GetKnowledge(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, h.knowledgeToResponse(knowledge))
}

type KnowledgeListResponse struct {
	Items []*KnowledgeResponse `json:"items"`
}

func (h *KnowledgeHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListKnowledge(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*KnowledgeResponse, len(items))
	for i, k := range items {
		responses[i] = h.knowledgeToResponse(k)
	}
	api.Success(w, http.StatusOK, KnowledgeListResponse{Items: responses})
}

func (h *KnowledgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.DeleteKnowledge(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusNoContent, nil)
}

func (h *KnowledgeHandler) AddSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req SourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	src, err := h.svc.AddSource(r.Context(), id, service.SourceInput{
		Filename: req.Filename,
		Type:     req.Type,
		Content:  req.Content,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, SourceResponse{
		ID:       src.ID,
		Filename: src.Filename,
		Type:     string(src.Type),
	})
}

func (h *KnowledgeHandler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sourceID := chi.URLParam(r, "sourceID")
	if id == "" || sourceID == "" {
		api.Error(w, http.StatusBadRequest, "id and sourceID are required")
		return
	}

	if err := h.svc.DeleteSource(r.Context(), id, sourceID); err != nil {
		api.HandleError(w, err)
		return
	}
	api.JSON(w, http.StatusNoContent, nil)
}

type ProcessResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Process triggers a background indexing run. The run is asynchronous:
// accepted means scheduled, not finished. A second trigger while one run is
// in flight is rejected with a conflict.
func (h *KnowledgeHandler) Process(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	knowledge, err := h.svc.GetKnowledge(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	if knowledge.Status == domain.KnowledgeStatusProcessing || h.scheduler.InFlight(id) {
		api.HandleError(w, domain.ErrProcessingInFlight)
		return
	}

	if err := h.scheduler.Trigger(id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusAccepted, ProcessResponse{
		ID:     id,
		Status: string(domain.KnowledgeStatusProcessing),
	})
}
