package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   slog.Level
		wantOK bool
	}{
		{in: "debug", want: slog.LevelDebug, wantOK: true},
		{in: " INFO ", want: slog.LevelInfo, wantOK: true},
		{in: "warning", want: slog.LevelWarn, wantOK: true},
		{in: "error", want: slog.LevelError, wantOK: true},
		{in: "", want: slog.LevelInfo},
		{in: "loud", want: slog.LevelInfo},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: "warn", Format: "text", Output: &buf})

	l.Info("hidden")
	l.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record written at warn level: %q", out)
	}
	if !strings.Contains(out, `msg=shown`) || !strings.Contains(out, "service=studybuddy") || !strings.Contains(out, "k=v") {
		t.Errorf("unexpected text output: %q", out)
	}
}

func TestNewDefaultsToJSON(t *testing.T) {
	var buf bytes.Buffer
	New(Options{Output: &buf}).Info("hello")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"service":"studybuddy"`) {
		t.Errorf("expected JSON record, got %q", buf.String())
	}
}

func TestConfigureInstallsSharedLogger(t *testing.T) {
	prevShared, prevDefault := Logger(), slog.Default()
	t.Cleanup(func() {
		SetLogger(prevShared)
		slog.SetDefault(prevDefault)
	})

	var buf bytes.Buffer
	Configure(Options{Level: "debug", Output: &buf})

	if !Logger().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("shared logger should be at debug")
	}
	WithComponent("router").Debug("routed")
	if !strings.Contains(buf.String(), `"component":"router"`) {
		t.Errorf("component not attached: %q", buf.String())
	}
}
