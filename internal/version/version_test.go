package version

import (
	"runtime"
	"strings"
	"testing"
)

func setBuild(t *testing.T, version, commit, date string) {
	t.Helper()
	oldVersion, oldCommit, oldDate := Version, GitCommit, BuildDate
	t.Cleanup(func() { Version, GitCommit, BuildDate = oldVersion, oldCommit, oldDate })
	Version, GitCommit, BuildDate = version, commit, date
}

func TestString(t *testing.T) {
	tests := []struct {
		name    string
		version string
		commit  string
		date    string
		want    string
	}{
		{"dev build", "dev", "unknown", "unknown", "streamgear dev"},
		{"empty commit", "v1.0.0", "", "unknown", "streamgear v1.0.0"},
		{"release", "v1.2.0", "0123456789abcdef", "2025-01-27", "streamgear v1.2.0 (0123456, built 2025-01-27)"},
		{"short commit", "v1.2.0", "abc", "2025-01-27", "streamgear v1.2.0 (abc, built 2025-01-27)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuild(t, tt.version, tt.commit, tt.date)
			if got := String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGet(t *testing.T) {
	setBuild(t, "v0.1.0", "deadbeef", "2025-01-27")

	info := Get()
	if info.Version != "v0.1.0" || info.GitCommit != "deadbeef" {
		t.Errorf("unexpected info %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected go version %s, got %s", runtime.Version(), info.GoVersion)
	}
	if !strings.Contains(info.Platform, "/") {
		t.Errorf("platform should be os/arch, got %q", info.Platform)
	}
}
