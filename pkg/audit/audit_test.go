package audit

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starsdaisuki/stargate/pkg/shell"
)

func newTestLogger(t *testing.T, rotation RotationConfig) (*FileLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.log")
	l, err := NewFileLogger(path, rotation)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, path
}

func TestEvent_New(t *testing.T) {
	e := NewEvent("alice", "local", OpSwitch)
	if e.User != "alice" || e.Host != "local" || e.Operation != OpSwitch {
		t.Errorf("NewEvent() = %+v", e)
	}
	if e.ID == "" || e.Timestamp.IsZero() {
		t.Error("ID and Timestamp should be set")
	}
	if other := NewEvent("alice", "local", OpSwitch); other.ID == e.ID {
		t.Error("event ids should be unique")
	}
}

func TestEvent_Chaining(t *testing.T) {
	steps := []shell.StepResult{{Step: shell.Step{Name: "route", Critical: true}, Ran: true}}
	e := NewEvent("alice", "192.168.50.23:22", OpSwitch).
		WithProfile("p-1", "Side router").
		WithInterface("wlan0").
		WithGateway("192.168.50.3").
		WithSteps(steps).
		WithReachable(true).
		WithSuccess(`switched to "Side router"`).
		WithDuration(2 * time.Second)

	if e.ProfileID != "p-1" || e.ProfileName != "Side router" || e.Interface != "wlan0" || e.Gateway != "192.168.50.3" {
		t.Errorf("event = %+v", e)
	}
	if !e.Success || !e.Reachable || e.Message == "" || len(e.Steps) != 1 || e.Duration != 2*time.Second {
		t.Errorf("event = %+v", e)
	}
}

func TestEvent_WithError(t *testing.T) {
	e := NewEvent("alice", "local", OpSwitch).WithSuccess("ok").WithError(errors.New("exit 1"))
	if e.Success || e.Error != "exit 1" {
		t.Errorf("event = %+v", e)
	}
	e = NewEvent("alice", "local", OpSwitch).WithError(nil)
	if e.Success || e.Error != "" {
		t.Errorf("nil error: event = %+v", e)
	}
}

func TestFileLogger_Query(t *testing.T) {
	l, _ := newTestLogger(t, RotationConfig{})

	events := []*Event{
		NewEvent("alice", "local", OpSwitch).WithProfile("side", "Side").WithInterface("wlan0").WithSuccess("ok"),
		NewEvent("bob", "local", OpProfileAdd).WithProfile("home", "Home").WithSuccess("added"),
		NewEvent("alice", "phone:22", OpSwitch).WithProfile("home", "Home").WithInterface("wlan1").WithError(errors.New("failed")),
		NewEvent("carol", "local", OpSwitch).WithProfile("side", "Side").WithInterface("wlan0").WithDryRun(true).WithSuccess("plan"),
	}
	for _, e := range events {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"user", Filter{User: "alice"}, 2},
		{"host", Filter{Host: "phone:22"}, 1},
		{"operation", Filter{Operation: OpSwitch}, 3},
		{"profile", Filter{ProfileID: "side"}, 2},
		{"interface", Filter{Interface: "wlan0"}, 2},
		{"success only", Filter{SuccessOnly: true}, 3},
		{"failure only", Filter{FailureOnly: true}, 1},
		{"limit", Filter{Limit: 2}, 2},
		{"offset", Filter{Offset: 3}, 1},
		{"offset past end", Filter{Offset: 10}, 0},
		{"last", Filter{Last: 3}, 3},
		{"start in future", Filter{StartTime: time.Now().Add(time.Hour)}, 0},
		{"end in past", Filter{EndTime: time.Now().Add(-time.Hour)}, 0},
		{"time window", Filter{StartTime: time.Now().Add(-time.Hour), EndTime: time.Now().Add(time.Hour)}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Query(tt.filter)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query(%+v) returned %d events, want %d", tt.filter, len(got), tt.want)
			}
		})
	}

	last, _ := l.Query(Filter{Last: 1})
	if last[0].User != "carol" {
		t.Errorf("Last should keep the newest event, got %s", last[0].User)
	}
}

func TestFileLogger_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.log")
	l, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger should create directories: %v", err)
	}
	defer l.Close()
	if l.Path() != path {
		t.Errorf("Path() = %q", l.Path())
	}
}

func TestFileLogger_OpenError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileLogger(path, RotationConfig{}); err == nil {
		t.Error("NewFileLogger should fail when the path is a directory")
	}
}

func TestFileLogger_MalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	content := `{"user":"alice","host":"local","operation":"switch","success":true}
not json
{"user":"bob","host":"local","operation":"switch","success":false}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	l, err := NewFileLogger(path, RotationConfig{})
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}
	defer l.Close()

	got, err := l.Query(Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("got %d events, want 2 (malformed skipped)", len(got))
	}
}

func TestFileLogger_Rotation(t *testing.T) {
	l, path := newTestLogger(t, RotationConfig{MaxSize: 50, MaxBackups: 2})

	for i := 0; i < 6; i++ {
		if err := l.Log(NewEvent(fmt.Sprintf("user%d", i), "local", OpSwitch)); err != nil {
			t.Fatalf("Log %d failed: %v", i, err)
		}
	}

	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 2 {
		t.Errorf("backups = %v, want exactly 2", matches)
	}
	for _, n := range []int{1, 2} {
		if _, err := os.Stat(backupName(path, n)); err != nil {
			t.Errorf("missing backup %d: %v", n, err)
		}
	}

	// Every event exceeds MaxSize, so the active file holds only the newest.
	got, _ := l.Query(Filter{})
	if len(got) != 1 || got[0].User != "user5" {
		t.Errorf("active file = %+v", got)
	}
}

func TestDefaultLogger(t *testing.T) {
	SetDefaultLogger(nil)
	if err := Log(NewEvent("u", "local", OpSwitch)); err != nil {
		t.Errorf("Log without default should be a no-op: %v", err)
	}
	if got, err := Query(Filter{}); err != nil || len(got) != 0 {
		t.Errorf("Query without default = %v, %v", got, err)
	}

	l, _ := newTestLogger(t, RotationConfig{})
	SetDefaultLogger(l)
	defer SetDefaultLogger(nil)

	if err := Log(NewEvent("alice", "local", OpSwitch).WithSuccess("ok")); err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	got, err := Query(Filter{})
	if err != nil || len(got) != 1 {
		t.Errorf("Query() = %d events, %v", len(got), err)
	}
}
