package booking

import (
	"testing"
	"time"
)

func TestCanTransitionAndApply(t *testing.T) {
	if !CanTransition(StatusPending, StatusConfirmed) {
		t.Fatalf("expected PENDING -> CONFIRMED allowed")
	}
	if CanTransition(StatusCompleted, StatusPending) {
		t.Fatalf("expected COMPLETED -> PENDING not allowed")
	}

	b := &Booking{Status: StatusPending}
	now := time.Now()
	if err := ApplyTransition(b, StatusConfirmed, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if b.Status != StatusConfirmed {
		t.Fatalf("expected status CONFIRMED, got %s", b.Status)
	}

	if err := ApplyTransition(b, StatusCompleted, now); err == nil {
		t.Fatalf("expected invalid shortcut transition to fail")
	}

	if err := ApplyTransition(b, StatusInProgress, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if err := ApplyTransition(b, StatusCompleted, now); err != nil {
		t.Fatalf("ApplyTransition: %v", err)
	}
	if b.CompletedAt == nil {
		t.Fatalf("expected CompletedAt to be set")
	}
}

func TestCanAdvanceStage(t *testing.T) {
	if !CanAdvanceStage(StageInspection, StageRepair) {
		t.Fatalf("expected forward jump allowed")
	}
	if CanAdvanceStage(StageRepair, StageInspection) {
		t.Fatalf("expected backward transition not allowed")
	}
	if !CanAdvanceStage(StageTesting, StageCompletion) {
		t.Fatalf("expected advance to COMPLETION allowed")
	}
	if CanAdvanceStage("NOPE", StageCompletion) {
		t.Fatalf("expected unknown stage rejected")
	}
}
