package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/enfinyte/umem/internal/controller"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/pkg/logger"
)

// Tenant headers. Every memory route requires the owner; the agent header
// narrows the scope to one agent's memories.
const (
	HeaderOwnerID = "X-Umem-Owner-ID"
	HeaderAgentID = "X-Umem-Agent-ID"
)

// Ingestor extracts memory content from files and URLs.
type Ingestor interface {
	LoadFile(path string) (string, error)
	Fetch(ctx context.Context, url string) (string, error)
}

// Handler bundles the HTTP endpoint handlers.
type Handler struct {
	service  MemoryService
	ingestor Ingestor
	log      *logger.Logger
}

// NewHandler creates a new Handler.
func NewHandler(s MemoryService, ingestor Ingestor, log *logger.Logger) *Handler {
	return &Handler{service: s, ingestor: ingestor, log: log}
}

func tenantFromHeaders(c *gin.Context) core.TenantContext {
	return core.TenantContext{
		OwnerID: c.GetHeader(HeaderOwnerID),
		AgentID: c.GetHeader(HeaderAgentID),
	}
}

// memoryView is the JSON shape of a memory in responses. The embedding is
// omitted; it is an implementation detail of retrieval.
type memoryView struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	AgentID   string    `json:"agent_id,omitempty"`
	Content   string    `json:"content"`
	Summary   string    `json:"summary"`
	Tags      []string  `json:"tags"`
	Kind      string    `json:"kind"`
	Certainty float32   `json:"certainty"`
	Salience  float32   `json:"salience"`
	Lifecycle string    `json:"lifecycle"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type scoredMemoryView struct {
	memoryView
	Score float32 `json:"score"`
}

func toView(m *core.Memory) memoryView {
	return memoryView{
		ID:        m.ID,
		OwnerID:   m.Context.OwnerID,
		AgentID:   m.Context.AgentID,
		Content:   m.Content,
		Summary:   m.Summary,
		Tags:      m.Tags,
		Kind:      string(m.Kind),
		Certainty: m.Certainty.Float32(),
		Salience:  m.Salience.Float32(),
		Lifecycle: string(m.Lifecycle),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// CreateMemoryRequest is the JSON body for capturing a memory.
type CreateMemoryRequest struct {
	Content string `json:"content" binding:"required"`
}

// CreateMemory captures raw content as a new memory.
func (h *Handler) CreateMemory(c *gin.Context) {
	var req CreateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.Create(c.Request.Context(), tenantFromHeaders(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toView(m))
}

// GetMemory returns a single memory by id.
func (h *Handler) GetMemory(c *gin.Context) {
	m, err := h.service.Get(c.Request.Context(), tenantFromHeaders(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(m))
}

// ListMemories returns the tenant's memories, newest first.
func (h *Handler) ListMemories(c *gin.Context) {
	opts, err := listOptionsFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	memories, err := h.service.List(c.Request.Context(), tenantFromHeaders(c), opts)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]memoryView, 0, len(memories))
	for _, m := range memories {
		views = append(views, toView(m))
	}
	c.JSON(http.StatusOK, gin.H{"memories": views})
}

// IngestMemoryRequest names a document to capture. Exactly one of url and
// path must be set.
type IngestMemoryRequest struct {
	URL  string `json:"url"`
	Path string `json:"path"`
}

// IngestMemory extracts text from a URL or a local file and captures it as a
// new memory.
func (h *Handler) IngestMemory(c *gin.Context) {
	var req IngestMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if (req.URL == "") == (req.Path == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of url and path is required"})
		return
	}

	var (
		content string
		err     error
	)
	if req.URL != "" {
		content, err = h.ingestor.Fetch(c.Request.Context(), req.URL)
	} else {
		content, err = h.ingestor.LoadFile(req.Path)
	}
	if err != nil {
		h.log.WithError(err).Warn("ingest failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.Create(c.Request.Context(), tenantFromHeaders(c), content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toView(m))
}

// SearchMemoryRequest is the JSON body for a similarity search.
type SearchMemoryRequest struct {
	Query           string     `json:"query" binding:"required"`
	Limit           int        `json:"limit"`
	IncludeArchived bool       `json:"include_archived"`
	Kinds           []string   `json:"kinds"`
	Tags            []string   `json:"tags"`
	MinCertainty    *float32   `json:"min_certainty"`
	MinSalience     *float32   `json:"min_salience"`
	CreatedAfter    *time.Time `json:"created_after"`
	CreatedBefore   *time.Time `json:"created_before"`
	UpdatedAfter    *time.Time `json:"updated_after"`
	UpdatedBefore   *time.Time `json:"updated_before"`
}

// SearchMemories returns the tenant's memories most similar to the query
// text, best first.
func (h *Handler) SearchMemories(c *gin.Context) {
	var req SearchMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kinds, err := parseKinds(req.Kinds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := controller.SearchOptions{
		Limit:           req.Limit,
		IncludeArchived: req.IncludeArchived,
		Kinds:           kinds,
		Tags:            req.Tags,
	}
	if req.MinCertainty != nil || req.MinSalience != nil {
		opts.Signals = &core.SignalFilter{MinCertainty: req.MinCertainty, MinSalience: req.MinSalience}
	}
	if req.CreatedAfter != nil || req.CreatedBefore != nil || req.UpdatedAfter != nil || req.UpdatedBefore != nil {
		opts.Temporal = &core.TemporalFilter{
			CreatedAfter:  req.CreatedAfter,
			CreatedBefore: req.CreatedBefore,
			UpdatedAfter:  req.UpdatedAfter,
			UpdatedBefore: req.UpdatedBefore,
		}
	}

	hits, err := h.service.Search(c.Request.Context(), tenantFromHeaders(c), req.Query, opts)
	if err != nil {
		writeError(c, err)
		return
	}

	views := make([]scoredMemoryView, 0, len(hits))
	for _, hit := range hits {
		views = append(views, scoredMemoryView{memoryView: toView(hit.Memory), Score: hit.Score})
	}
	c.JSON(http.StatusOK, gin.H{"memories": views})
}

// UpdateMemoryRequest is the JSON body for re-capturing a memory.
type UpdateMemoryRequest struct {
	Content string `json:"content" binding:"required"`
}

// UpdateMemory replaces a memory's content, re-running annotation and
// embedding.
func (h *Handler) UpdateMemory(c *gin.Context) {
	var req UpdateMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.Update(c.Request.Context(), tenantFromHeaders(c), c.Param("id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(m))
}

// TransitionMemoryRequest is the JSON body for a lifecycle transition.
type TransitionMemoryRequest struct {
	State string `json:"state" binding:"required"`
}

// TransitionMemory moves a memory along the lifecycle graph.
func (h *Handler) TransitionMemory(c *gin.Context) {
	var req TransitionMemoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	state, err := core.ParseLifecycleState(req.State)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	m, err := h.service.Transition(c.Request.Context(), tenantFromHeaders(c), c.Param("id"), state)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(m))
}

// ArchiveMemory moves a memory to the archived state.
func (h *Handler) ArchiveMemory(c *gin.Context) {
	h.transitionTo(c, core.StateArchived)
}

// RestoreMemory moves an archived memory back to the active state.
func (h *Handler) RestoreMemory(c *gin.Context) {
	h.transitionTo(c, core.StateActive)
}

func (h *Handler) transitionTo(c *gin.Context, state core.LifecycleState) {
	m, err := h.service.Transition(c.Request.Context(), tenantFromHeaders(c), c.Param("id"), state)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toView(m))
}

// DeleteMemory soft-deletes a memory. With ?purge=true the record is removed
// permanently instead.
func (h *Handler) DeleteMemory(c *gin.Context) {
	tctx := tenantFromHeaders(c)
	id := c.Param("id")

	var err error
	if c.Query("purge") == "true" {
		err = h.service.Purge(c.Request.Context(), tctx, id)
	} else {
		err = h.service.Delete(c.Request.Context(), tctx, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func listOptionsFromQuery(c *gin.Context) (controller.ListOptions, error) {
	opts := controller.ListOptions{
		IncludeArchived: c.Query("include_archived") == "true",
		Tags:            c.QueryArray("tag"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return opts, err
		}
		opts.Limit = limit
	}
	kinds, err := parseKinds(c.QueryArray("kind"))
	if err != nil {
		return opts, err
	}
	opts.Kinds = kinds

	minCertainty, err := parseFloatParam(c, "min_certainty")
	if err != nil {
		return opts, err
	}
	minSalience, err := parseFloatParam(c, "min_salience")
	if err != nil {
		return opts, err
	}
	if minCertainty != nil || minSalience != nil {
		opts.Signals = &core.SignalFilter{MinCertainty: minCertainty, MinSalience: minSalience}
	}

	createdAfter, err := parseTimeParam(c, "created_after")
	if err != nil {
		return opts, err
	}
	createdBefore, err := parseTimeParam(c, "created_before")
	if err != nil {
		return opts, err
	}
	updatedAfter, err := parseTimeParam(c, "updated_after")
	if err != nil {
		return opts, err
	}
	updatedBefore, err := parseTimeParam(c, "updated_before")
	if err != nil {
		return opts, err
	}
	if createdAfter != nil || createdBefore != nil || updatedAfter != nil || updatedBefore != nil {
		opts.Temporal = &core.TemporalFilter{
			CreatedAfter:  createdAfter,
			CreatedBefore: createdBefore,
			UpdatedAfter:  updatedAfter,
			UpdatedBefore: updatedBefore,
		}
	}
	return opts, nil
}

func parseFloatParam(c *gin.Context, name string) (*float32, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	f := float32(v)
	return &f, nil
}

func parseTimeParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", name, err)
	}
	return &t, nil
}

func parseKinds(raw []string) ([]core.MemoryKind, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	kinds := make([]core.MemoryKind, 0, len(raw))
	for _, r := range raw {
		kind, err := core.ParseMemoryKind(r)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, kind)
	}
	return kinds, nil
}
