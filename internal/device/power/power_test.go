package power

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

type recorder struct {
	power, vbus []bool
}

func (r *recorder) SetPower(on bool) error { r.power = append(r.power, on); return nil }
func (r *recorder) SetVBUS(on bool) error  { r.vbus = append(r.vbus, on); return nil }

func TestLogging_DelegatesToNext(t *testing.T) {
	rec := &recorder{}
	l := Logging{Board: "db845c", Next: rec, Log: slog.Default()}

	if err := l.SetPower(true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	if err := l.SetVBUS(false); err != nil {
		t.Fatalf("SetVBUS: %v", err)
	}
	if len(rec.power) != 1 || !rec.power[0] {
		t.Fatalf("power calls = %v", rec.power)
	}
	if len(rec.vbus) != 1 || rec.vbus[0] {
		t.Fatalf("vbus calls = %v", rec.vbus)
	}
}

func TestLogging_NilNextIsSafe(t *testing.T) {
	l := Logging{Board: "db845c", Log: slog.Default()}
	if err := l.SetPower(true); err != nil {
		t.Fatalf("SetPower with nil Next: %v", err)
	}
}

func TestGPIO_WritesSysfsValue(t *testing.T) {
	dir := t.TempDir()
	sysfsGPIORoot = dir
	defer func() { sysfsGPIORoot = "/sys/class/gpio" }()

	if err := os.MkdirAll(filepath.Join(dir, "gpio12"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	g := GPIO{PowerLine: 12}
	if err := g.SetPower(true); err != nil {
		t.Fatalf("SetPower: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "gpio12", "value"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "1\n" {
		t.Fatalf("value file = %q, want %q", got, "1\n")
	}
}

func TestGPIO_VBUSDisabledWhenLineZero(t *testing.T) {
	g := GPIO{PowerLine: 1}
	if err := g.SetVBUS(true); err != nil {
		t.Fatalf("SetVBUS with no line configured should be a no-op: %v", err)
	}
}
