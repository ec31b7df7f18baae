package version

import "testing"

func stamp(t *testing.T, v, commit, built string) {
	t.Helper()
	oldV, oldC, oldB := Version, GitCommit, BuildTime
	Version, GitCommit, BuildTime = v, commit, built
	t.Cleanup(func() { Version, GitCommit, BuildTime = oldV, oldC, oldB })
}

func TestGet_StampedValuesWin(t *testing.T) {
	stamp(t, "1.2.0", "0123456789abcdef", "2026-01-02T15:04:05Z")

	info := Get()
	if info.Version != "1.2.0" {
		t.Errorf("Version = %q", info.Version)
	}
	if info.GitCommit != "0123456" {
		t.Errorf("GitCommit = %q, want the abbreviated stamp", info.GitCommit)
	}
	if info.BuildTime != "2026-01-02T15:04:05Z" {
		t.Errorf("BuildTime = %q", info.BuildTime)
	}
}

func TestInfo_String(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{Version: "dev"}, "dev"},
		{Info{Version: "1.0.0", GitCommit: "abc1234"}, "1.0.0-abc1234"},
		{Info{Version: "1.0.0", GitCommit: "abc1234", Dirty: true}, "1.0.0-abc1234-dirty"},
		{Info{Version: "1.0.0", BuildTime: "2026-01-02T15:04:05Z"}, "1.0.0 (built 2026-01-02T15:04:05Z)"},
	}
	for _, tt := range tests {
		if got := tt.info.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
