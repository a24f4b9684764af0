package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.FreqHz != 1000 {
		t.Errorf("expected 1000 Hz, got %d", cfg.FreqHz)
	}
	if cfg.TaskCapacity != 10 || cfg.DelayCapacity != 10 || cfg.EventCapacity != 10 {
		t.Errorf("unexpected capacities: %+v", cfg.Config)
	}
	if cfg.TickPeriod() != time.Millisecond {
		t.Errorf("expected 1ms tick, got %v", cfg.TickPeriod())
	}
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != DefaultConfig().Listen {
		t.Errorf("expected default listen, got %q", cfg.Listen)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tickos.yaml")
	data := `
freq_hz: 100
task_capacity: 4
event_capacity: 3
tasks:
  - index: 0
    name: heartbeat
    period_ms: 500
    action:
      kind: log
      message: alive
events:
  - id: 7
    name: button
    action:
      kind: counter
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.FreqHz != 100 || cfg.TaskCapacity != 4 || cfg.EventCapacity != 3 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.DelayCapacity != 10 {
		t.Errorf("expected default delay capacity, got %d", cfg.DelayCapacity)
	}
	if len(cfg.Tasks) != 1 || cfg.Tasks[0].Action.Message != "alive" {
		t.Errorf("tasks not parsed: %+v", cfg.Tasks)
	}
	if len(cfg.Events) != 1 || cfg.Events[0].ID != 7 {
		t.Errorf("events not parsed: %+v", cfg.Events)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad yaml", "freq_hz: [", "parsing"},
		{"zero freq", "freq_hz: 0", "freq_hz"},
		{"zero capacity", "delay_capacity: 0", "capacities"},
		{"index out of range", "task_capacity: 2\ntasks:\n  - index: 2\n    action: {kind: log}", "out of range"},
		{"duplicate index", "tasks:\n  - index: 1\n    action: {kind: log}\n  - index: 1\n    action: {kind: log}", "twice"},
		{"missing kind", "events:\n  - id: 1", "kind"},
		{"too many events", "event_capacity: 1\nevents:\n  - {id: 1, action: {kind: log}}\n  - {id: 2, action: {kind: log}}", "event_capacity"},
		{"bad format", "log_format: xml", "log_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "tickos.yaml")
	cfg := DefaultConfig()
	cfg.Tasks = []TaskSpec{{Index: 3, Name: "blink", PeriodMs: 10, Action: ActionSpec{Kind: "blink", DelayKey: 1, DurationMs: 250}}}

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Action.DurationMs != 250 {
		t.Errorf("round trip lost task: %+v", got.Tasks)
	}

	if err := Save(path, nil); err == nil {
		t.Error("expected error saving nil config")
	}
}

func TestMsToTicks(t *testing.T) {
	tests := []struct {
		ms   uint32
		freq int
		want uint32
	}{
		{0, 1000, 0},
		{1, 1000, 1},
		{250, 1000, 250},
		{1, 100, 1},
		{15, 100, 2},
		{1000, 10, 10},
		{10, 1_000_000, 10_000},
		{^uint32(0), 1_000_000, ^uint32(0)},
		{5, 0, 0},
	}
	for _, tt := range tests {
		if got := MsToTicks(tt.ms, tt.freq); got != tt.want {
			t.Errorf("MsToTicks(%d, %d) = %d, want %d", tt.ms, tt.freq, got, tt.want)
		}
	}
}

func TestTicksToMs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FreqHz = 100
	if got := cfg.TicksToMs(7); got != 70 {
		t.Errorf("TicksToMs(7) = %d, want 70", got)
	}
	if got := cfg.MsToTicks(70); got != 7 {
		t.Errorf("MsToTicks(70) = %d, want 7", got)
	}
}
