package annotation

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/enfinyte/umem/internal/core"
	"github.com/enfinyte/umem/internal/llm"
	"github.com/enfinyte/umem/pkg/logger"
	"github.com/enfinyte/umem/pkg/retry"
)

type scriptedLLM struct {
	replies []string
	errs    []error
	calls   int
}

func (s *scriptedLLM) GenerateContent(ctx context.Context, req *llm.Request) (string, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return s.replies[len(s.replies)-1], nil
}

func testPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxElapsed:      time.Second,
		Multiplier:      2,
	}
}

const goodReply = `{"summary": "user prefers dark mode", "tags": ["preference", "editor", "dark-mode"], "kind": "Instruction", "certainty": 0.9, "salience": 0.6}`

func TestAnnotateParsesReply(t *testing.T) {
	model := &scriptedLLM{replies: []string{goodReply}}
	pipeline := NewPipeline(model, testPolicy(), logger.New("test"))

	result, err := pipeline.Annotate(context.Background(), "I always want dark mode")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if result.Summary != "user prefers dark mode" {
		t.Errorf("Summary = %q", result.Summary)
	}
	if result.Kind != core.KindInstruction {
		t.Errorf("Kind = %s, want Instruction", result.Kind)
	}
	if !reflect.DeepEqual(result.Tags, []string{"preference", "editor", "dark-mode"}) {
		t.Errorf("Tags = %v", result.Tags)
	}
	if result.Certainty.Float32() != 0.9 || result.Salience.Float32() != 0.6 {
		t.Errorf("signals = %v/%v", result.Certainty.Float32(), result.Salience.Float32())
	}
}

func TestAnnotateStripsCodeFence(t *testing.T) {
	model := &scriptedLLM{replies: []string{"```json\n" + goodReply + "\n```"}}
	pipeline := NewPipeline(model, testPolicy(), logger.New("test"))

	if _, err := pipeline.Annotate(context.Background(), "content"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
}

func TestAnnotateRetriesMalformedReply(t *testing.T) {
	model := &scriptedLLM{replies: []string{"not json at all", goodReply}}
	pipeline := NewPipeline(model, testPolicy(), logger.New("test"))

	result, err := pipeline.Annotate(context.Background(), "content")
	if err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
	if result.Summary == "" {
		t.Error("empty summary after successful retry")
	}
}

func TestAnnotateRetriesInvalidSignals(t *testing.T) {
	overconfident := `{"summary": "s", "tags": ["t"], "kind": "Semantic", "certainty": 1.4, "salience": 0.5}`
	model := &scriptedLLM{replies: []string{overconfident, goodReply}}
	pipeline := NewPipeline(model, testPolicy(), logger.New("test"))

	if _, err := pipeline.Annotate(context.Background(), "content"); err != nil {
		t.Fatalf("Annotate: %v", err)
	}
	if model.calls != 2 {
		t.Errorf("calls = %d, want 2", model.calls)
	}
}

func TestAnnotateExhaustsBudget(t *testing.T) {
	boom := errors.New("model unavailable")
	model := &scriptedLLM{
		replies: []string{"", "", ""},
		errs:    []error{boom, boom, boom},
	}
	pipeline := NewPipeline(model, testPolicy(), logger.New("test"))

	_, err := pipeline.Annotate(context.Background(), "content")
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Annotate error = %v, want ExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Error("ExhaustedError does not wrap the last failure")
	}
}

func TestParseResultRejectsUnknownKind(t *testing.T) {
	reply := `{"summary": "s", "tags": ["t"], "kind": "Imaginary", "certainty": 0.5, "salience": 0.5}`
	if _, err := parseResult(reply); err == nil {
		t.Error("unknown kind accepted")
	}
}
