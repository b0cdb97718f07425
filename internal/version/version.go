// Package version reports how the sitepipe binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"time"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// engines are the modules whose versions decide the build output.
var engines = []string{
	"github.com/evanw/esbuild",
	"github.com/tdewolff/parse/v2",
	"github.com/yuin/goldmark",
	"github.com/a-h/templ",
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string            `json:"version"`
	GitCommit string            `json:"git_commit"`
	BuildTime time.Time         `json:"build_time"`
	GoVersion string            `json:"go_version"`
	Platform  string            `json:"platform"`
	Modified  bool              `json:"modified,omitempty"`
	Engines   map[string]string `json:"engines,omitempty"`
}

// GetBuildInfo combines the link-time variables with the module build
// information embedded by the Go toolchain.
func GetBuildInfo() *BuildInfo {
	info := &BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Engines:   make(map[string]string),
	}

	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.GitCommit == "unknown" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildTime.IsZero() {
				info.BuildTime = parseBuildTime(s.Value)
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	for _, dep := range bi.Deps {
		for _, engine := range engines {
			if dep.Path == engine {
				info.Engines[engine] = dep.Version
			}
		}
	}
	return info
}

// Short is the one-line version: "v1.2.0 (abc1234)" or "dev-abc1234".
func (b *BuildInfo) Short() string {
	if len(b.GitCommit) < 7 || b.GitCommit == "unknown" {
		return b.Version
	}
	commit := b.GitCommit[:7]
	if b.Modified {
		commit += "-dirty"
	}
	if b.Version == "dev" {
		return "dev-" + commit
	}
	return fmt.Sprintf("%s (%s)", b.Version, commit)
}

// String renders every known field, one per line.
func (b *BuildInfo) String() string {
	lines := []string{"Version:  " + b.Short()}
	if !b.BuildTime.IsZero() {
		lines = append(lines, "Built:    "+b.BuildTime.UTC().Format(time.RFC3339))
	}
	lines = append(lines, "Go:       "+b.GoVersion, "Platform: "+b.Platform)

	names := make([]string, 0, len(b.Engines))
	for name := range b.Engines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("Engine:   %s %s", name, b.Engines[name]))
	}
	return strings.Join(lines, "\n")
}

// GetShortVersion is GetBuildInfo().Short().
func GetShortVersion() string {
	return GetBuildInfo().Short()
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
