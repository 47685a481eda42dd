package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoTuning(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.MillisPerTick != 100 || tu.MaxPendingActions != 20 || tu.MaxFollowUpTicks != 3 {
		t.Fatalf("unexpected tuning: %+v", tu)
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("millis_per_tick: 50\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tu.MillisPerTick != 50 {
		t.Fatalf("millis_per_tick=%d", tu.MillisPerTick)
	}
	d := Defaults()
	if tu.WorkerThreads != d.WorkerThreads || tu.Movement.MillisPerBlock != d.Movement.MillisPerBlock {
		t.Fatalf("defaults not applied: %+v", tu)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("millis_per_tick: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected parse error")
	}
}
