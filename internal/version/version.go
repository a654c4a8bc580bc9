// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

// Package version holds build information for scriptbridge binaries.
// Values are injected at build time via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

// Example: go build -ldflags "-X github.com/aplane-algo/scriptbridge/internal/version.Version=1.0.0"
var (
	// Version is the semantic version, also exposed to scripts as bridge.version
	Version = "dev"

	// GitCommit is the short commit hash
	GitCommit = "unknown"

	// BuildTime is the RFC3339 build timestamp
	BuildTime = "unknown"
)

// String returns the version line printed by `jsbridge version`.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, engine: goja, %s/%s)",
		Version, GitCommit, BuildTime, runtime.GOOS, runtime.GOARCH)
}
