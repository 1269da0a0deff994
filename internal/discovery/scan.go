// Package discovery walks the library root and produces the titles worth
// optimizing: supported containers, outside any versions folder, above the
// 1080p threshold.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/victordavi-mos/OptimizePlex/internal/ffmpeg"
	"github.com/victordavi-mos/OptimizePlex/internal/model"
)

var videoExtensions = map[string]bool{
	".mkv":  true,
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".m4v":  true,
	".ts":   true,
	".m2ts": true,
	".wmv":  true,
	".webm": true,
}

// SizeProber resolves a file to its primary video dimensions. Injected so
// scans are testable without a real ffprobe.
type SizeProber func(ctx context.Context, path string) (int, int, error)

// Result is one library scan. Titles holds only >1080p sources in sorted
// path order; the counters report what was passed over and why.
type Result struct {
	Titles         []model.Title
	BelowThreshold int
	ProbeFailures  []string
}

// ListTitles walks root and probes every candidate video file. Anything
// inside a Plex Versions folder is skipped wholesale, as is any file already
// carrying the optimized-output marker in its name, wherever it has been
// moved.
func ListTitles(ctx context.Context, root string, probe SizeProber) (Result, error) {
	if probe == nil {
		probe = ffmpeg.ProbeSize
	}

	var candidates []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == model.VersionsDirName {
				return filepath.SkipDir
			}
			return nil
		}
		if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if strings.Contains(filepath.Base(path), model.OptimizedMarker) {
			return nil
		}
		candidates = append(candidates, path)
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Strings(candidates)

	res := Result{}
	for _, path := range candidates {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		w, h, err := probe(ctx, path)
		if err != nil {
			res.ProbeFailures = append(res.ProbeFailures, path)
			continue
		}
		title := model.Title{
			Path:   path,
			Name:   filepath.Base(path),
			Width:  w,
			Height: h,
		}
		if !title.Exceeds1080p() {
			res.BelowThreshold++
			continue
		}
		res.Titles = append(res.Titles, title)
	}
	return res, nil
}
