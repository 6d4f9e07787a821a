package version

import (
	"runtime/debug"
	"testing"
)

// Tests here swap package state and must not run in parallel.

func withBuildInfo(t *testing.T, bi *debug.BuildInfo) {
	t.Helper()
	prev := readBuildInfo
	readBuildInfo = func() (*debug.BuildInfo, bool) { return bi, bi != nil }
	t.Cleanup(func() { readBuildInfo = prev })
}

func TestResolveUsesBuildInfo(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		GoVersion: "go1.26.0",
		Main:      debug.Module{Version: "v0.3.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	})

	info := Resolve()
	if info.Version != "v0.3.1" || info.BuildTime != "2026-01-02T03:04:05Z" || info.GoVersion != "go1.26.0" {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := String(); got != "v0.3.1 (0123456789ab)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveDevelFallsBackToBuildTime(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.time", Value: "2026-05-06T00:00:00Z"}},
	})

	if info := Resolve(); info.Version != "2026-05-06T00:00:00Z" || info.Commit != "" {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestLinkerFlagsWin(t *testing.T) {
	withBuildInfo(t, &debug.BuildInfo{
		Main:     debug.Module{Version: "v9.9.9"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "deadbeef"}},
	})
	Version, Commit = "v1.0.0", "cafe"
	t.Cleanup(func() { Version, Commit = "", "" })

	if got := String(); got != "v1.0.0 (cafe)" {
		t.Fatalf("String() = %q", got)
	}
}

func TestResolveWithoutBuildInfo(t *testing.T) {
	withBuildInfo(t, nil)

	if info := Resolve(); info.Version == "" {
		t.Fatalf("expected a fallback version")
	}
}
