// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Release builds stamp these with -ldflags -X; see the package doc.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""
)

// build is what is known about the running binary.
type build struct {
	commit string
	dirty  bool
	time   string
}

// current prefers stamped values and falls back to the VCS settings
// the go command embeds in module builds.
func current() build {
	stamped := build{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if stamped.commit != "" {
		return stamped
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamped
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			stamped.commit = setting.Value
		case "vcs.modified":
			stamped.dirty = setting.Value == "true"
		case "vcs.time":
			if stamped.time == "" {
				stamped.time = setting.Value
			}
		}
	}
	return stamped
}

// Info is the --version line for keybridge and keybridge-daemon, e.g.
// "0.1.0-dev (3f2a9c1-dirty, built 2026-05-01T10:00:00Z, go1.25.6 linux/amd64)".
func Info() string {
	return describe(current())
}

func describe(b build) string {
	commit := b.commit
	switch {
	case commit == "":
		commit = "unknown commit"
	case len(commit) > 7:
		commit = commit[:7]
	}
	if b.dirty {
		commit += "-dirty"
	}
	parts := []string{commit}
	if b.time != "" {
		parts = append(parts, "built "+b.time)
	}
	parts = append(parts, fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH))
	return fmt.Sprintf("%s (%s)", Version, strings.Join(parts, ", "))
}

// Short is the version the daemon reports in GET /status.
func Short() string {
	return Version
}

// UserAgent is sent by bridgeclient on every daemon request so the
// daemon's logs show which client build is asking.
func UserAgent() string {
	return "keybridge/" + Version
}
