// Package version reports build metadata for campusd and campusctl.
//
// Release builds inject it with ldflags:
//
//	go build -ldflags "-X github.com/NicolasHaas/campus/pkg/version.tag=v1.0.0
//	  -X github.com/NicolasHaas/campus/pkg/version.commit=abc1234
//	  -X github.com/NicolasHaas/campus/pkg/version.date=2026-01-01"
//
// Without ldflags the VCS stamp recorded by the Go toolchain is used.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	tag    = ""
	commit = ""
	date   = ""
)

// Info is the merged build metadata.
type Info struct {
	Tag       string
	Commit    string
	Date      string
	Modified  bool // built from a dirty work tree
	GoVersion string
}

// Get merges ldflags values with the embedded build info.
func Get() Info {
	info := Info{Tag: tag, Commit: commit, Date: date, GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	return info
}

// String is the short form:
//
//	Tagged:   "v0.2.0"
//	Untagged: "abc1234" or "abc1234-dirty"
//	Dev:      "dev"
func (i Info) String() string {
	if i.Tag != "" {
		return i.Tag
	}
	if i.Commit != "" {
		c := i.Commit
		if len(c) > 7 {
			c = c[:7]
		}
		if i.Modified {
			c += "-dirty"
		}
		return c
	}
	return "dev"
}

// Full adds the build date when known.
func (i Info) Full() string {
	s := i.String()
	if i.Tag != "" && i.Commit != "" {
		s += " (" + i.Commit + ")"
	}
	if i.Date != "" {
		s += " built " + i.Date
	}
	return s
}

// String returns the short version of the running binary.
func String() string { return Get().String() }
