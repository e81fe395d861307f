package engine

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/probelab/groundcheck/internal/types"
)

func testValidator() *Validator {
	return NewValidator(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
}

func TestValidate_ModeNone_AcceptsUnexpectedToolCalls(t *testing.T) {
	v := testValidator()
	res := &types.GroundingResult{Provider: "openai", ModelID: "gpt-5", ToolCallCount: 3}

	if err := v.Validate(types.ModeNone, res); err != nil {
		t.Fatalf("mode NONE must accept unconditionally, got %v", err)
	}
	if res.GroundedEffective {
		t.Error("mode NONE must force grounded_effective false")
	}
}

func TestValidate_ModeAuto(t *testing.T) {
	v := testValidator()

	grounded := &types.GroundingResult{ToolCallCount: 1}
	if err := v.Validate(types.ModeAuto, grounded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !grounded.GroundedEffective {
		t.Error("tool calls under AUTO should mark the result grounded")
	}

	ungrounded := &types.GroundingResult{ToolCallCount: 0}
	if err := v.Validate(types.ModeAuto, ungrounded); err != nil {
		t.Fatalf("absence of grounding under AUTO is accepted, got %v", err)
	}
	if ungrounded.GroundedEffective {
		t.Error("no tool calls must not be marked grounded")
	}
}

func TestValidate_ModeRequired_FailsClosed(t *testing.T) {
	v := testValidator()
	res := &types.GroundingResult{Provider: "gemini", ModelID: "gemini-2.5-pro", ToolCallCount: 0}

	err := v.Validate(types.ModeRequired, res)
	var ungrounded *types.GroundingRequired
	if !errors.As(err, &ungrounded) {
		t.Fatalf("expected GroundingRequired, got %v", err)
	}
	if res.GroundedEffective {
		t.Error("a failed REQUIRED validation must never leave grounded_effective true")
	}
}

func TestValidate_ModeRequired_Grounded(t *testing.T) {
	v := testValidator()
	res := &types.GroundingResult{ToolCallCount: 2}

	if err := v.Validate(types.ModeRequired, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.GroundedEffective {
		t.Error("expected grounded_effective true")
	}
}
