package cli

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/collagist/collagist/backend-go/internal/auth"
)

func writeSquare(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 6, 5))
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 4; x++ {
			img.Set(x, y, color.NRGBA{G: 255, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "square.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTraceFormats(t *testing.T) {
	path := writeSquare(t)

	tests := []struct {
		format string
		want   string
	}{
		{"points", "1,1 1,3 4,3 4,1"},
		{"clip", "polygon(1px 1px,1px 3px,4px 3px,4px 1px)"},
		{"svg", `<polygon class="img-border" points="1,1 1,3 4,3 4,1">`},
		{"json", `"width": 6`},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			out, err := run(t, "trace", path, "--format", tt.format)
			if err != nil {
				t.Fatalf("trace error = %v", err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output = %q, want it to contain %q", out, tt.want)
			}
		})
	}
}

func TestTraceErrors(t *testing.T) {
	path := writeSquare(t)
	if _, err := run(t, "trace", path, "--format", "pdf"); err == nil {
		t.Error("unknown format should fail")
	}
	if _, err := run(t, "trace", filepath.Join(t.TempDir(), "missing.png")); err == nil {
		t.Error("missing file should fail")
	}
	if _, err := run(t, "trace", path, "--threshold", "255"); err == nil {
		t.Error("fully transparent trace should fail")
	}
}

func TestTraceOutputFile(t *testing.T) {
	path := writeSquare(t)
	dest := filepath.Join(t.TempDir(), "out.txt")
	if _, err := run(t, "trace", path, "-o", dest); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != "1,1 1,3 4,3 4,1" {
		t.Errorf("file = %q", data)
	}
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "fair", "--secret", "s3cret", "--ttl", "1h")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	key, err := auth.NewService("s3cret").ValidateToken(strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if key != "fair" {
		t.Errorf("key = %q, want fair", key)
	}

	if _, err := run(t, "token", "../etc", "--secret", "x"); err == nil {
		t.Error("invalid key should fail")
	}
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, log.DebugLevel)
	ctx := withLogger(context.Background(), l)
	if loggerFromContext(ctx) != l {
		t.Error("loggerFromContext should return the attached logger")
	}
	if loggerFromContext(context.Background()) == nil {
		t.Error("loggerFromContext should fall back to the default logger")
	}

	slogFromContext(ctx).Debug("traced", "vertices", 4)
	if !strings.Contains(buf.String(), "traced") {
		t.Errorf("slog output = %q", buf.String())
	}
}
