package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// version is stamped by the release build via
// -ldflags "-X github.com/victordavi-mos/OptimizePlex/internal/cli.version=v1.2.3".
var version = "v0.0.0-dev"

// releaseEndpoint is a var so tests can point it at a local server.
var releaseEndpoint = "https://api.github.com/repos/victordavi-mos/OptimizePlex/releases/latest"

type latestReleaseResponse struct {
	TagName string `json:"tag_name"`
}

type versionReport struct {
	Version         string `json:"version"`
	Latest          string `json:"latest,omitempty"`
	UpdateAvailable bool   `json:"update_available,omitempty"`
}

func runVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	check := fs.Bool("check", false, "query GitHub for the latest release tag")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return asUsage(err)
	}

	report := versionReport{Version: normalizeVersionTag(version)}
	if *check {
		latest, err := fetchLatestReleaseTag()
		if err != nil {
			return fmt.Errorf("check latest release: %w", err)
		}
		report.Latest = latest
		if newer, cmpErr := isNewerVersion(latest, report.Version); cmpErr == nil {
			report.UpdateAvailable = newer
		}
	}

	if *jsonOut {
		return printJSON(report)
	}
	fmt.Println("optimizeplex", report.Version)
	if *check {
		if report.UpdateAvailable {
			fmt.Printf("update available: %s\n", report.Latest)
		} else {
			fmt.Printf("up to date (latest %s)\n", report.Latest)
		}
	}
	return nil
}

func fetchLatestReleaseTag() (string, error) {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	client.HTTPClient.Timeout = 5 * time.Second

	req, err := http.NewRequest(http.MethodGet, releaseEndpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "optimizeplex-version-check")

	resp, err := client.StandardClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d fetching latest release", resp.StatusCode)
	}

	var payload latestReleaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return normalizeVersionTag(payload.TagName), nil
}

func normalizeVersionTag(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "v") {
		raw = "v" + raw
	}
	return raw
}

func isNewerVersion(candidate, current string) (bool, error) {
	a, err := parseSemver(candidate)
	if err != nil {
		return false, err
	}
	b, err := parseSemver(current)
	if err != nil {
		return false, err
	}
	return compareSemver(a, b) > 0, nil
}

type semverValue struct {
	major      int
	minor      int
	patch      int
	prerelease string
}

func parseSemver(raw string) (semverValue, error) {
	tag := strings.TrimSpace(raw)
	tag = strings.TrimPrefix(tag, "v")
	if tag == "" {
		return semverValue{}, fmt.Errorf("invalid version %q", raw)
	}

	core := tag
	pre := ""
	if idx := strings.Index(tag, "-"); idx >= 0 {
		core = tag[:idx]
		pre = tag[idx+1:]
	}

	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return semverValue{}, fmt.Errorf("invalid semver core %q", raw)
	}

	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return semverValue{}, err
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return semverValue{}, err
	}
	patch, err := strconv.Atoi(parts[2])
	if err != nil {
		return semverValue{}, err
	}

	return semverValue{major: major, minor: minor, patch: patch, prerelease: pre}, nil
}

func compareSemver(a, b semverValue) int {
	if a.major != b.major {
		return cmpInt(a.major, b.major)
	}
	if a.minor != b.minor {
		return cmpInt(a.minor, b.minor)
	}
	if a.patch != b.patch {
		return cmpInt(a.patch, b.patch)
	}

	aPre := strings.TrimSpace(a.prerelease)
	bPre := strings.TrimSpace(b.prerelease)
	if aPre == "" && bPre != "" {
		return 1
	}
	if aPre != "" && bPre == "" {
		return -1
	}
	if aPre == bPre {
		return 0
	}
	if aPre > bPre {
		return 1
	}
	return -1
}

func cmpInt(a, b int) int {
	if a > b {
		return 1
	}
	if a < b {
		return -1
	}
	return 0
}
