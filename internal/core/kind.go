package core

import (
	"fmt"
	"strings"
)

// MemoryKind classifies what a memory is about. The annotation pipeline
// assigns it at creation time.
type MemoryKind string

const (
	KindSemantic    MemoryKind = "Semantic"    // general knowledge
	KindEpisodic    MemoryKind = "Episodic"    // events with temporal or spatial context
	KindProcedural  MemoryKind = "Procedural"  // skills, workflows, habits
	KindInstruction MemoryKind = "Instruction" // explicit directives and preferences
	KindRelational  MemoryKind = "Relational"  // people, entities, relationships
	KindWorking     MemoryKind = "Working"     // temporary task context
	KindProspective MemoryKind = "Prospective" // future plans and reminders
)

// AllKinds lists every memory kind, in classification-prompt order.
func AllKinds() []MemoryKind {
	return []MemoryKind{
		KindSemantic, KindEpisodic, KindProcedural, KindInstruction,
		KindRelational, KindWorking, KindProspective,
	}
}

// ParseMemoryKind converts a stored or model-produced string into a kind.
// A few aliases the model tends to emit are accepted.
func ParseMemoryKind(s string) (MemoryKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "semantic":
		return KindSemantic, nil
	case "episodic":
		return KindEpisodic, nil
	case "procedural":
		return KindProcedural, nil
	case "instruction", "directive":
		return KindInstruction, nil
	case "relational", "relation":
		return KindRelational, nil
	case "working":
		return KindWorking, nil
	case "prospective", "future":
		return KindProspective, nil
	default:
		return "", fmt.Errorf("invalid memory kind: %q", s)
	}
}

// IsTransient reports whether memories of this kind are expected to be
// short-lived.
func (k MemoryKind) IsTransient() bool {
	return k == KindWorking
}
