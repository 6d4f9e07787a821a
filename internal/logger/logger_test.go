package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	log.Info("hello", "key", "value")

	output := buf.String()
	if !strings.Contains(output, `"msg":"hello"`) {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, `"key":"value"`) {
		t.Fatalf("expected key=value in JSON output, got: %s", output)
	}
}

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output for info/debug at warn level, got: %s", buf.String())
	}

	log.Warn("should appear")
	if !strings.Contains(buf.String(), "should appear") {
		t.Fatalf("expected warn message in output, got: %s", buf.String())
	}
}

func TestPretty(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo)
	log.Info("loaded", "pos", 12, "name", "toy model")

	output := buf.String()
	if !strings.Contains(output, "loaded") {
		t.Fatalf("expected message in output, got: %s", output)
	}
	if !strings.Contains(output, "pos=12") {
		t.Fatalf("expected pos=12 in output, got: %s", output)
	}
	if !strings.Contains(output, `name="toy model"`) {
		t.Fatalf("expected quoted string in output, got: %s", output)
	}
}

func TestPrettyWithGroupPrefixesKeys(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Pretty(&buf, slog.LevelInfo).WithGroup("runner").WithGroup("decode")
	log.Info("step", "token", 7)

	if !strings.Contains(buf.String(), "runner.decode.token=7") {
		t.Fatalf("expected nested group key, got: %s", buf.String())
	}
}

func TestPrettyWithAttrsDoesNotLeak(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	base := Pretty(&buf, slog.LevelInfo)
	child := base.With("component", "api")

	base.Info("base")
	child.Info("child")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %d: %q", len(lines), buf.String())
	}
	if strings.Contains(lines[0], "component=api") {
		t.Fatalf("parent logger picked up child attrs: %s", lines[0])
	}
	if !strings.Contains(lines[1], "component=api") {
		t.Fatalf("child logger lost attrs: %s", lines[1])
	}
}

func TestConsoleUsesZerolog(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := Console(&buf, slog.LevelInfo)
	log.Debug("hidden")
	log.With("run", 1).WithGroup("stats").Info("report", "tokens", 5)

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Fatalf("debug message should be filtered: %s", output)
	}
	if !strings.Contains(output, "report") || !strings.Contains(output, "stats.tokens") {
		t.Fatalf("expected grouped key in console output, got: %s", output)
	}
}

func TestDiscardDropsEverything(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("nothing")
	log.With("k", "v").WithGroup("g").Warn("still nothing")
}

func TestLeveledUsesDebugForWarmup(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)

	Leveled(log, true)("warmup message")
	if buf.Len() != 0 {
		t.Fatalf("warmup message should log at debug, got: %s", buf.String())
	}
	Leveled(log, false)("real message")
	if !strings.Contains(buf.String(), "real message") {
		t.Fatalf("expected info message, got: %s", buf.String())
	}
}

func TestForFormat(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"json":    `"msg":"x"`,
		"text":    "msg=x",
		"pretty":  " x",
		"unknown": " x",
	}
	for format, want := range cases {
		var buf bytes.Buffer
		ForFormat(format, &buf, slog.LevelInfo).Info("x")
		if !strings.Contains(buf.String(), want) {
			t.Fatalf("format %q: expected %q in %q", format, want, buf.String())
		}
	}
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelInfo)
	ctx := WithContext(context.Background(), log)

	FromContext(ctx).Info("from context")
	if !strings.Contains(buf.String(), "from context") {
		t.Fatalf("expected context logger to be used, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext returned nil for empty context")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()
	cases := map[string]bool{
		"simple":    false,
		"":          true,
		"two words": true,
		"a=b":       true,
		`say "hi"`:  true,
	}
	for in, want := range cases {
		if got := needsQuoting(in); got != want {
			t.Errorf("needsQuoting(%q) = %v, want %v", in, got, want)
		}
	}
}
