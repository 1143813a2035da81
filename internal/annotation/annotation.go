package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/llm"
	"github.com/enfinyte/umem/pkg/logger"
	"github.com/enfinyte/umem/pkg/retry"
)

const annotationPrompt = `You are a memory annotation system. Your task is to analyze raw content captured from a session between a user and an AI agent, then extract structured memory metadata that can be stored and retrieved efficiently.

## Input
Raw content such as a conversation transcript, a note, or a document excerpt. Focus on extracting what the user learned, decided, asked about, or expressed preferences for, not the back-and-forth dialogue itself.

## Output
Respond with a single JSON object, no surrounding prose, matching:
{"summary": string, "tags": [string], "kind": string, "certainty": number, "salience": number}

### summary
Extract the key points from the content as a concise, information-dense summary. Requirements:
- Preserve specific details: names, dates, numbers, URLs, technical terms, and concrete values
- Focus on actionable information, facts, preferences, and decisions made by the user
- Capture the resolution or answer, not the process of arriving at it
- Omit filler words, pleasantries, and redundant back-and-forth
- Use clear, direct language

### tags
Extract 3-7 lowercase keywords that categorize and index this memory:
- Use singular forms (e.g., "project" not "projects")
- Include domain-specific terms, proper nouns (lowercased), and action verbs where relevant
- Prioritize terms useful for future retrieval

### kind
Classify the memory into exactly one type:
- Semantic: General knowledge, facts, concepts, definitions, explanations
- Episodic: Specific events, experiences, occurrences with temporal or spatial context
- Procedural: How-to knowledge, workflows, step-by-step processes, techniques, habits
- Instruction: Explicit directives, user preferences, rules, constraints, configurations
- Relational: Information about people, organizations, entities, and their relationships
- Working: Temporary context relevant only to an ongoing task or session
- Prospective: Future intentions, goals, plans, reminders, scheduled commitments

### certainty
How confident the stated information is, from 0.0 (speculative) to 1.0 (stated as established fact).

### salience
How important this memory is likely to be for future interactions, from 0.0 (incidental) to 1.0 (critical).`

// Result is the structured metadata produced for a piece of raw content.
type Result struct {
	Summary   string
	Tags      []string
	Kind      core.MemoryKind
	Certainty core.Credence
	Salience  core.Credence
}

// ExhaustedError is returned when the retry budget is spent without a usable
// annotation. It wraps the last failure.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("annotation failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Pipeline turns raw content into annotation metadata by prompting a language
// model and validating its structured reply. Model errors and malformed
// replies both count against the same retry budget.
type Pipeline struct {
	model  llm.LLM
	policy retry.Policy
	log    *logger.Logger
}

// NewPipeline creates an annotation pipeline over the given model.
func NewPipeline(model llm.LLM, policy retry.Policy, log *logger.Logger) *Pipeline {
	return &Pipeline{model: model, policy: policy, log: log}
}

// Annotate produces validated annotation metadata for content. Every field of
// the result has passed domain validation when the error is nil.
func (p *Pipeline) Annotate(ctx context.Context, content string) (*Result, error) {
	var result *Result
	attempts, err := p.policy.Do(ctx, func() error {
		raw, err := p.model.GenerateContent(ctx, &llm.Request{
			System:      annotationPrompt,
			Prompt:      content,
			Temperature: 0.7,
			MaxTokens:   10000,
		})
		if err != nil {
			p.log.WithError(err).Warn("annotation model call failed")
			return err
		}

		parsed, err := parseResult(raw)
		if err != nil {
			p.log.WithError(err).Warn("annotation reply rejected")
			return err
		}
		result = parsed
		return nil
	})
	if err != nil {
		return nil, &ExhaustedError{Attempts: attempts, Err: err}
	}
	return result, nil
}

type rawResult struct {
	Summary   string   `json:"summary"`
	Tags      []string `json:"tags"`
	Kind      string   `json:"kind"`
	Certainty float32  `json:"certainty"`
	Salience  float32  `json:"salience"`
}

// parseResult decodes and validates one model reply. Models occasionally wrap
// JSON in a markdown code fence despite instructions, so fences are stripped
// before decoding.
func parseResult(raw string) (*Result, error) {
	var decoded rawResult
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &decoded); err != nil {
		return nil, fmt.Errorf("annotation reply is not valid JSON: %w", err)
	}

	if strings.TrimSpace(decoded.Summary) == "" {
		return nil, core.ErrEmptySummary
	}
	tags, err := core.NormalizeTags(decoded.Tags)
	if err != nil {
		return nil, err
	}
	kind, err := core.ParseMemoryKind(decoded.Kind)
	if err != nil {
		return nil, err
	}
	certainty, err := core.NewCredence(decoded.Certainty)
	if err != nil {
		return nil, fmt.Errorf("invalid certainty: %w", err)
	}
	salience, err := core.NewCredence(decoded.Salience)
	if err != nil {
		return nil, fmt.Errorf("invalid salience: %w", err)
	}

	return &Result{
		Summary:   strings.TrimSpace(decoded.Summary),
		Tags:      tags,
		Kind:      kind,
		Certainty: certainty,
		Salience:  salience,
	}, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
