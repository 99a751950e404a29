// SPDX-FileCopyrightText: 2025 The HEPscore Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"log/slog"
	"runtime"
)

// populated through -ldflags "-X .../internal/version.version=..."
var (
	version   string
	buildTime string
	gitBranch string
	gitCommit string
)

type VersionInfo struct {
	Version   string
	BuildTime string
	GitBranch string
	GitCommit string
	GoVersion string
	GoOS      string
	GoArch    string
}

// Info returns the version information
func Info() VersionInfo {
	return VersionInfo{
		Version:   orUnknown(version),
		BuildTime: orUnknown(buildTime),
		GitBranch: orUnknown(gitBranch),
		GitCommit: orUnknown(gitCommit),
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// String is the one line form printed by --version
func (v VersionInfo) String() string {
	return fmt.Sprintf("hepscore-energy %s (commit %s, branch %s, built %s) %s %s/%s",
		v.Version, v.GitCommit, v.GitBranch, v.BuildTime, v.GoVersion, v.GoOS, v.GoArch)
}

// LogValue implements slog.LogValuer
func (v VersionInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", v.Version),
		slog.String("buildTime", v.BuildTime),
		slog.String("gitBranch", v.GitBranch),
		slog.String("gitCommit", v.GitCommit),
		slog.String("goVersion", v.GoVersion),
		slog.String("goOS", v.GoOS),
		slog.String("goArch", v.GoArch),
	)
}
