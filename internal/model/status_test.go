package model

import "testing"

func TestCanTransition_AllowsExpectedPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{"", StatePending},
		{StatePending, StateBlocked},
		{StatePending, StateReady},
		{StatePending, StateSkipped},
		{StateBlocked, StateReady},
		{StateReady, StateRunning},
		{StateRunning, StateSuccess},
		{StateRunning, StateFailed},
		{StateRunning, StateReady},
		{StateBlocked, StateFailed},
	}

	for _, tc := range cases {
		if !CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be allowed", tc.from, tc.to)
		}
	}
}

func TestCanTransition_RejectsInvalidPaths(t *testing.T) {
	cases := []struct {
		from string
		to   string
	}{
		{StatePending, StateRunning},
		{StateBlocked, StateRunning},
		{StateSuccess, StateReady},
		{StateFailed, StateRunning},
		{StateSkipped, StateReady},
		{StateReady, StateSuccess},
		{"not_a_state", StatePending},
	}

	for _, tc := range cases {
		if CanTransition(tc.from, tc.to) {
			t.Fatalf("expected transition %q -> %q to be rejected", tc.from, tc.to)
		}
	}
}

func TestTransitionJob_BlocksIllegalTransition(t *testing.T) {
	job := Job{
		ID:        1,
		TitleName: "Movie",
		Rendition: Rendition1080p,
		State:     StateReady,
	}

	if err := TransitionJob(&job, StateSuccess, ""); err == nil {
		t.Fatalf("expected illegal transition error")
	}
	if job.State != StateReady {
		t.Fatalf("state mutated on rejected transition: %q", job.State)
	}
}

func TestIsTerminalState(t *testing.T) {
	for _, s := range []string{StateSuccess, StateFailed, StateSkipped} {
		if !IsTerminalState(s) {
			t.Fatalf("expected %q to be terminal", s)
		}
	}
	for _, s := range []string{StatePending, StateBlocked, StateReady, StateRunning} {
		if IsTerminalState(s) {
			t.Fatalf("expected %q to be non-terminal", s)
		}
	}
}
