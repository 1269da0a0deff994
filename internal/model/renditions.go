package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Rendition names.
const (
	Rendition1080p = "1080p"
	Rendition720p  = "720p"
)

// VersionsDirName is the Plex-recognized folder for optimized versions,
// created next to each source file.
const VersionsDirName = "Plex Versions"

// OptimizedMarker tags output file names so a later scan never treats them as
// sources, even when they have been moved out of the versions folder.
const OptimizedMarker = " (Optimized-"

// TargetContainer is the output container for every rendition.
const TargetContainer = "mp4"

// RenditionSpec fixes the encode target for one rendition. Table order
// matters: 1080p precedes 720p so the cascade source exists first.
type RenditionSpec struct {
	Name      string
	Label     string
	MaxWidth  int
	MaxHeight int
	MaxRate   string
	BufSize   string
	Quality   int
}

var renditions = []RenditionSpec{
	{Name: Rendition1080p, Label: "Optimized-1080p", MaxWidth: 1920, MaxHeight: 1080, MaxRate: "8M", BufSize: "16M", Quality: 19},
	{Name: Rendition720p, Label: "Optimized-720p", MaxWidth: 1280, MaxHeight: 720, MaxRate: "4M", BufSize: "8M", Quality: 21},
}

// Renditions returns the encode targets in dependency order.
func Renditions() []RenditionSpec {
	out := make([]RenditionSpec, len(renditions))
	copy(out, renditions)
	return out
}

func RenditionByName(name string) (RenditionSpec, bool) {
	for _, r := range renditions {
		if r.Name == name {
			return r, true
		}
	}
	return RenditionSpec{}, false
}

// OutputPath places the rendition next to the source under the versions
// folder: <dir>/Plex Versions/<stem> (<label>).mp4.
func (r RenditionSpec) OutputPath(src string) string {
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	name := fmt.Sprintf("%s (%s).%s", stem, r.Label, TargetContainer)
	return filepath.Join(filepath.Dir(src), VersionsDirName, name)
}
