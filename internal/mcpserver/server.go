package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/enfinyte/umem/internal/api"
	"github.com/enfinyte/umem/internal/config"
	"github.com/enfinyte/umem/internal/controller"
	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/pkg/logger"
)

// Version of the MCP surface.
var Version = "1.0.0"

// Handler implements the MCP tool callbacks over the memory service.
type Handler struct {
	service api.MemoryService
	log     *logger.Logger
}

// NewServer builds the MCP server exposing memory tools to agent hosts.
func NewServer(service api.MemoryService, log *logger.Logger) *server.MCPServer {
	h := &Handler{service: service, log: log}

	s := server.NewMCPServer("umem", Version)

	s.AddTool(mcp.NewTool(
		"add_memory",
		mcp.WithDescription("Store a piece of content as a long-term memory. The content is summarized, tagged, and embedded automatically."),
		mcp.WithString("owner_id", mcp.Description("Owner of the memory"), mcp.Required()),
		mcp.WithString("agent_id", mcp.Description("Agent scope; omit for a user-scoped memory")),
		mcp.WithString("content", mcp.Description("Raw content to remember"), mcp.Required()),
	), h.HandleAddMemory)

	s.AddTool(mcp.NewTool(
		"search_memory",
		mcp.WithDescription("Find the memories most similar to a query text, best match first."),
		mcp.WithString("owner_id", mcp.Description("Owner of the memories"), mcp.Required()),
		mcp.WithString("agent_id", mcp.Description("Agent scope; omit for user-scoped memories")),
		mcp.WithString("query", mcp.Description("Text to search for"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithBoolean("include_archived", mcp.Description("Also search archived memories")),
	), h.HandleSearchMemory)

	s.AddTool(mcp.NewTool(
		"get_memory",
		mcp.WithDescription("Fetch a single memory by its id."),
		mcp.WithString("owner_id", mcp.Description("Owner of the memory"), mcp.Required()),
		mcp.WithString("agent_id", mcp.Description("Agent scope; omit for a user-scoped memory")),
		mcp.WithString("id", mcp.Description("Memory id"), mcp.Required()),
	), h.HandleGetMemory)

	s.AddTool(mcp.NewTool(
		"list_memories",
		mcp.WithDescription("List stored memories, newest first."),
		mcp.WithString("owner_id", mcp.Description("Owner of the memories"), mcp.Required()),
		mcp.WithString("agent_id", mcp.Description("Agent scope; omit for user-scoped memories")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
		mcp.WithBoolean("include_archived", mcp.Description("Also list archived memories")),
	), h.HandleListMemories)

	s.AddTool(mcp.NewTool(
		"delete_memory",
		mcp.WithDescription("Delete a memory. It disappears from every retrieval path."),
		mcp.WithString("owner_id", mcp.Description("Owner of the memory"), mcp.Required()),
		mcp.WithString("agent_id", mcp.Description("Agent scope; omit for a user-scoped memory")),
		mcp.WithString("id", mcp.Description("Memory id"), mcp.Required()),
	), h.HandleDeleteMemory)

	return s
}

// Serve runs the MCP server on the configured transport, blocking until it
// stops. Stdio is not offered: stdout carries the process logs, which a stdio
// protocol stream cannot share.
func Serve(s *server.MCPServer, cfg config.MCPConfig) error {
	switch cfg.Transport {
	case "httpstream":
		httpServer := server.NewStreamableHTTPServer(s)
		return httpServer.Start(cfg.Address)
	default:
		return fmt.Errorf("unknown mcp transport: %s", cfg.Transport)
	}
}

func tenantFromRequest(request mcp.CallToolRequest) (core.TenantContext, error) {
	ownerID, err := request.RequireString("owner_id")
	if err != nil {
		return core.TenantContext{}, err
	}
	return core.TenantContext{
		OwnerID: ownerID,
		AgentID: request.GetString("agent_id", ""),
	}, nil
}

type memoryView struct {
	ID        string   `json:"id"`
	Content   string   `json:"content"`
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Kind      string   `json:"kind"`
	Certainty float32  `json:"certainty"`
	Salience  float32  `json:"salience"`
	Lifecycle string   `json:"lifecycle"`
	Score     *float32 `json:"score,omitempty"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
}

func toView(m *core.Memory, score *float32) memoryView {
	return memoryView{
		ID:        m.ID,
		Content:   m.Content,
		Summary:   m.Summary,
		Tags:      m.Tags,
		Kind:      string(m.Kind),
		Certainty: m.Certainty.Float32(),
		Salience:  m.Salience.Float32(),
		Lifecycle: string(m.Lifecycle),
		Score:     score,
		CreatedAt: m.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt: m.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(encoded)), nil
}

// HandleAddMemory stores content as a new memory.
func (h *Handler) HandleAddMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tctx, err := tenantFromRequest(request)
	if err != nil {
		return nil, err
	}
	content, err := request.RequireString("content")
	if err != nil {
		return nil, err
	}

	m, err := h.service.Create(ctx, tctx, content)
	if err != nil {
		h.log.WithError(err).Error("add_memory failed")
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(toView(m, nil))
}

// HandleSearchMemory runs a similarity search.
func (h *Handler) HandleSearchMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tctx, err := tenantFromRequest(request)
	if err != nil {
		return nil, err
	}
	query, err := request.RequireString("query")
	if err != nil {
		return nil, err
	}

	opts := controller.SearchOptions{
		Limit:           request.GetInt("limit", 0),
		IncludeArchived: request.GetBool("include_archived", false),
	}
	hits, err := h.service.Search(ctx, tctx, query, opts)
	if err != nil {
		h.log.WithError(err).Error("search_memory failed")
		return mcp.NewToolResultError(err.Error()), nil
	}

	views := make([]memoryView, 0, len(hits))
	for _, hit := range hits {
		score := hit.Score
		views = append(views, toView(hit.Memory, &score))
	}
	return jsonResult(views)
}

// HandleGetMemory fetches one memory by id.
func (h *Handler) HandleGetMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tctx, err := tenantFromRequest(request)
	if err != nil {
		return nil, err
	}
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}

	m, err := h.service.Get(ctx, tctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(toView(m, nil))
}

// HandleListMemories lists memories, newest first.
func (h *Handler) HandleListMemories(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tctx, err := tenantFromRequest(request)
	if err != nil {
		return nil, err
	}

	opts := controller.ListOptions{
		Limit:           request.GetInt("limit", 0),
		IncludeArchived: request.GetBool("include_archived", false),
	}
	memories, err := h.service.List(ctx, tctx, opts)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	views := make([]memoryView, 0, len(memories))
	for _, m := range memories {
		views = append(views, toView(m, nil))
	}
	return jsonResult(views)
}

// HandleDeleteMemory soft-deletes a memory.
func (h *Handler) HandleDeleteMemory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tctx, err := tenantFromRequest(request)
	if err != nil {
		return nil, err
	}
	id, err := request.RequireString("id")
	if err != nil {
		return nil, err
	}

	if err := h.service.Delete(ctx, tctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("memory %s deleted", id)), nil
}
