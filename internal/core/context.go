package core

import (
	"fmt"
	"strings"
)

// ContextError is returned when a tenant context is missing or malformed.
type ContextError struct {
	Field string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("tenant context: %s must not be empty or whitespace", e.Field)
}

// TenantContext identifies the isolation boundary that owns a memory: the
// owning user plus an optional acting agent. Equality of two contexts defines
// the boundary; no operation may read or write a memory whose context does not
// equal the requesting context.
type TenantContext struct {
	OwnerID string `json:"owner_id"`
	AgentID string `json:"agent_id,omitempty"`
}

// ForUser builds a context owned by a user with no acting agent.
func ForUser(ownerID string) (TenantContext, error) {
	return newContext(ownerID, "")
}

// ForAgent builds a context owned by a user with an acting agent.
func ForAgent(ownerID, agentID string) (TenantContext, error) {
	if strings.TrimSpace(agentID) == "" {
		return TenantContext{}, &ContextError{Field: "agent_id"}
	}
	return newContext(ownerID, agentID)
}

func newContext(ownerID, agentID string) (TenantContext, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return TenantContext{}, &ContextError{Field: "owner_id"}
	}
	return TenantContext{OwnerID: ownerID, AgentID: strings.TrimSpace(agentID)}, nil
}

// Validate re-checks the invariant for contexts decoded from the wire or a
// persisted payload.
func (c TenantContext) Validate() error {
	if strings.TrimSpace(c.OwnerID) == "" {
		return &ContextError{Field: "owner_id"}
	}
	return nil
}

// Equal reports whether two contexts identify the same tenant. Both owner and
// agent must match.
func (c TenantContext) Equal(other TenantContext) bool {
	return c.OwnerID == other.OwnerID && c.AgentID == other.AgentID
}

// HasAgent reports whether an acting agent is part of the boundary.
func (c TenantContext) HasAgent() bool {
	return c.AgentID != ""
}
