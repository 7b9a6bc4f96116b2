package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fileOnly routes logs to a file under t.TempDir and restores the no-op
// logger when the test ends.
func fileOnly(t *testing.T, opts Options) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshquery.log")
	opts.File = FileConfig{Path: path, MaxSizeMB: 1, MaxBackups: 2, MaxAgeDays: 1}
	if err := InitWithOptions(opts); err != nil {
		t.Fatalf("InitWithOptions: %v", err)
	}
	t.Cleanup(Reset)
	return path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	Sync()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	return string(data)
}

func TestRotation(t *testing.T) {
	path := fileOnly(t, Options{Level: "info"})

	// About 1.5MB of entries against a 1MB limit.
	payload := strings.Repeat("v", 180)
	for i := 0; i < 7000; i++ {
		Info("mesh loaded", zap.Int("seq", i), zap.String("path", payload))
	}
	Sync()

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	var rotated []string
	for _, e := range entries {
		name := e.Name()
		if name != "meshquery.log" && strings.HasPrefix(name, "meshquery-") && strings.HasSuffix(name, ".log") {
			rotated = append(rotated, name)
		}
	}
	if len(rotated) == 0 {
		t.Fatalf("no rotated files among %v", entries)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log missing: %v", err)
	}
}

func TestLevels(t *testing.T) {
	tests := []struct {
		level   string
		present []string
		absent  []string
	}{
		{"error", []string{"ERROR"}, []string{"WARN", "INFO", "DEBUG"}},
		{"warn", []string{"ERROR", "WARN"}, []string{"INFO", "DEBUG"}},
		{"info", []string{"ERROR", "WARN", "INFO"}, []string{"DEBUG"}},
		{"debug", []string{"ERROR", "WARN", "INFO", "DEBUG"}, nil},
		{"bogus", []string{"INFO"}, []string{"DEBUG"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			path := fileOnly(t, Options{Level: tt.level})

			Debug("tree built")
			Info("mesh loaded")
			Warn("faces skipped")
			Error("query failed")

			out := readLog(t, path)
			for _, want := range tt.present {
				if !strings.Contains(out, want) {
					t.Errorf("missing %s in %q", want, out)
				}
			}
			for _, unwanted := range tt.absent {
				if strings.Contains(out, unwanted) {
					t.Errorf("unexpected %s at level %s", unwanted, tt.level)
				}
			}
		})
	}
}

func TestDefaultFileConfig(t *testing.T) {
	got := DefaultFileConfig("/var/log/meshquery.log")
	want := FileConfig{
		Path:       "/var/log/meshquery.log",
		MaxSizeMB:  50,
		MaxBackups: 3,
		MaxAgeDays: 7,
		Compress:   true,
	}
	if got != want {
		t.Errorf("DefaultFileConfig() = %+v, want %+v", got, want)
	}
}

func TestJSONFormat(t *testing.T) {
	path := fileOnly(t, Options{Level: "info", Format: "json"})

	Named("querydoc").Info("query done", zap.Int("triangles", 12))

	line := strings.TrimSpace(readLog(t, path))
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("expected a JSON line, got %q", line)
	}
	for _, want := range []string{`"msg":"query done"`, `"logger":"querydoc"`, `"level":"INFO"`, `"triangles":12`} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %s", want, line)
		}
	}
}

func TestConsoleFormat(t *testing.T) {
	path := fileOnly(t, Options{Level: "info"})

	Sugar.Infof("indexed %d triangles", 3)

	out := readLog(t, path)
	if strings.HasPrefix(out, "{") {
		t.Errorf("console format wrote JSON: %q", out)
	}
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "indexed 3 triangles") {
		t.Errorf("unexpected console line %q", out)
	}
}

func TestResetDiscards(t *testing.T) {
	Reset()
	if Log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("reset logger should not be enabled for any level")
	}
	// Must not panic without Init.
	Info("dropped")
	Sync()
}
