package model

import (
	"path/filepath"
	"testing"
)

func TestRenditionOrder(t *testing.T) {
	rs := Renditions()
	if len(rs) != 2 {
		t.Fatalf("expected 2 renditions, got %d", len(rs))
	}
	if rs[0].Name != Rendition1080p || rs[1].Name != Rendition720p {
		t.Fatalf("unexpected rendition order: %s, %s", rs[0].Name, rs[1].Name)
	}
}

func TestOutputPath(t *testing.T) {
	r, ok := RenditionByName(Rendition1080p)
	if !ok {
		t.Fatal("missing 1080p rendition")
	}
	got := r.OutputPath(filepath.Join("/library", "Show", "Episode 01.mkv"))
	want := filepath.Join("/library", "Show", "Plex Versions", "Episode 01 (Optimized-1080p).mp4")
	if got != want {
		t.Fatalf("OutputPath = %q, want %q", got, want)
	}
}

func TestExceeds1080p(t *testing.T) {
	cases := []struct {
		w, h int
		want bool
	}{
		{3840, 2160, true},
		{1920, 1080, false},
		{1921, 1080, true},
		{1920, 1081, true},
		{1280, 720, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		title := Title{Width: tc.w, Height: tc.h}
		if got := title.Exceeds1080p(); got != tc.want {
			t.Fatalf("Exceeds1080p(%dx%d) = %v, want %v", tc.w, tc.h, got, tc.want)
		}
	}
}

func TestRecomputeCounts(t *testing.T) {
	m := RunManifest{Jobs: []Job{
		{State: StateBlocked},
		{State: StateReady},
		{State: StateRunning},
		{State: StateSuccess},
		{State: StateSuccess},
		{State: StateFailed},
		{State: StateSkipped},
	}}
	m.RecomputeCounts()
	if m.Total != 7 || m.Blocked != 1 || m.Ready != 1 || m.Running != 1 {
		t.Fatalf("unexpected live counts: %+v", m)
	}
	if m.Succeeded != 2 || m.Failed != 1 || m.Skipped != 1 {
		t.Fatalf("unexpected terminal counts: %+v", m)
	}
}
