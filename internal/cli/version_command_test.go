package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsNewerVersion(t *testing.T) {
	cases := []struct {
		candidate string
		current   string
		newer     bool
	}{
		{"v1.2.3", "v1.2.2", true},
		{"v1.2.3", "v1.2.3", false},
		{"v1.2.3", "v1.3.0", false},
		{"v2.0.0", "v1.9.9", true},
		{"v1.2.3", "v1.2.3-rc.1", true},
		{"v1.2.3-rc.1", "v1.2.3", false},
		{"1.2.4", "v1.2.3", true},
	}
	for _, tc := range cases {
		got, err := isNewerVersion(normalizeVersionTag(tc.candidate), normalizeVersionTag(tc.current))
		if err != nil {
			t.Fatalf("isNewerVersion(%q, %q): %v", tc.candidate, tc.current, err)
		}
		if got != tc.newer {
			t.Fatalf("isNewerVersion(%q, %q) = %v, want %v", tc.candidate, tc.current, got, tc.newer)
		}
	}

	if _, err := isNewerVersion("not-a-version", "v1.0.0"); err == nil {
		t.Fatal("expected an error for a malformed tag")
	}
}

func TestNormalizeVersionTag(t *testing.T) {
	if got := normalizeVersionTag("1.2.3"); got != "v1.2.3" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeVersionTag(" v1.2.3 "); got != "v1.2.3" {
		t.Fatalf("got %q", got)
	}
	if got := normalizeVersionTag(""); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestVersionJSON(t *testing.T) {
	out, err := captureStdout(t, func() error {
		return Run([]string{"version", "--json"})
	})
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var report versionReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("parse version JSON: %v\n%s", err, out)
	}
	if report.Version != normalizeVersionTag(version) {
		t.Fatalf("version = %q", report.Version)
	}
}

func TestVersionCheckAgainstLocalServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Accept"); got != "application/vnd.github+json" {
			t.Errorf("Accept header = %q", got)
		}
		_, _ = w.Write([]byte(`{"tag_name":"v9.9.9"}`))
	}))
	defer srv.Close()

	old := releaseEndpoint
	releaseEndpoint = srv.URL
	defer func() { releaseEndpoint = old }()

	out, err := captureStdout(t, func() error {
		return Run([]string{"version", "--check"})
	})
	if err != nil {
		t.Fatalf("version --check: %v", err)
	}
	if !strings.Contains(out, "update available: v9.9.9") {
		t.Fatalf("missing update line:\n%s", out)
	}
}

func TestVersionCheckServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	old := releaseEndpoint
	releaseEndpoint = srv.URL
	defer func() { releaseEndpoint = old }()

	err := Run([]string{"version", "--check"})
	if err == nil {
		t.Fatal("expected an error from a failing release endpoint")
	}
	if ExitCode(err) != 1 {
		t.Fatalf("exit code = %d, want 1", ExitCode(err))
	}
}
