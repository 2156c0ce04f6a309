/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build information.
package version

import "runtime"

// Version is set at build time via ldflags:
//
//	-X github.com/friendsincode/wavecast/internal/version.Version=X.Y.Z
var Version = "0.1.0"

// Commit is the VCS revision, set via ldflags.
var Commit = "unknown"

// Info is the payload of `wavecast version` and the /health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Current returns the running build's info.
func Current() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}

// UserAgent is sent by the listen client.
func UserAgent() string {
	return "wavecast/" + Version
}
