package main

import (
	"testing"

	"github.com/untoldecay/mission-control/internal/config"
)

func TestConfigValuesReportSources(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MC_ROOT", "")
	t.Setenv("CLAWD_PATH", dir)
	t.Setenv("MC_SERVER_ADDR", "")
	if err := config.Initialize(""); err != nil {
		t.Fatal(err)
	}

	s := testSettings(t)
	s.Root = dir
	s.HooksDir = "/srv/hooks"
	got := map[string]ConfigValue{}
	for _, cv := range configValues(s) {
		got[cv.Key] = cv
	}

	if cv := got["root"]; cv.Value != dir || cv.Source != config.SourceEnvVar {
		t.Errorf("root = %+v, want %s from %s", cv, dir, config.SourceEnvVar)
	}
	if cv := got["server.addr"]; cv.Value != s.ServerAddr || cv.Source != config.SourceDefault {
		t.Errorf("server.addr = %+v", cv)
	}
	if cv := got["hooks.dir"]; cv.Value != "/srv/hooks" {
		t.Errorf("hooks.dir = %+v", cv)
	}
}
