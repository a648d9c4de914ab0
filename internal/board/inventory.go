package board

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Inventory is the parsed board inventory file: a name-to-descriptor
// table loaded once at server startup and never mutated afterward.
type Inventory struct {
	Path   string
	Boards map[string]*Descriptor
}

// DefaultPaths are tried in order by LoadDefault, matching spec.md §6:
// ".cdba" in the current directory, falling back to "/etc/cdba".
var DefaultPaths = []string{".cdba", "/etc/cdba"}

// LoadDefault loads the first inventory file found among DefaultPaths.
func LoadDefault() (*Inventory, error) {
	var lastErr error
	for _, p := range DefaultPaths {
		inv, err := Load(p)
		if err == nil {
			return inv, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("board: no inventory found in %v: %w", DefaultPaths, lastErr)
}

// Load reads and parses the inventory file at path.
func Load(path string) (*Inventory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	boards, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("board: parse %s: %w", path, err)
	}
	return &Inventory{Path: path, Boards: boards}, nil
}

// Lookup returns the descriptor for name, or nil if unknown.
func (inv *Inventory) Lookup(name string) *Descriptor {
	if inv == nil {
		return nil
	}
	return inv.Boards[name]
}

// parse implements the small subset of TOML this inventory format needs:
// `[board-name]` table headers and `key = value` assignments, where a
// value is a bare word, a double-quoted string, an integer, a bool, or
// a `["a", "b"]` string array (used for the ACL list). Comments start
// with '#'. There is no nesting beyond one table level, no multi-line
// strings and no inline tables — a real config-management library is
// the right tool once this format needs more, but the spec leaves the
// syntax unspecified and this repo's dependency graph carries none.
func parse(r io.Reader) (map[string]*Descriptor, error) {
	boards := make(map[string]*Descriptor)
	var cur *Descriptor

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(stripComment(sc.Text()))
		if text == "" {
			continue
		}
		if strings.HasPrefix(text, "[") {
			name, err := parseTableHeader(text)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cur = &Descriptor{Name: name, ACL: map[string]bool{}, PowerParams: map[string]string{}}
			boards[name] = cur
			continue
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: assignment outside a [board] table", line)
		}
		key, val, err := parseAssignment(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if err := applyField(cur, key, val); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return boards, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, '#'); i >= 0 {
		return s[:i]
	}
	return s
}

func parseTableHeader(s string) (string, error) {
	if !strings.HasSuffix(s, "]") {
		return "", fmt.Errorf("unterminated table header %q", s)
	}
	name := strings.TrimSpace(s[1 : len(s)-1])
	if name == "" {
		return "", fmt.Errorf("empty table header")
	}
	return unquote(name), nil
}

func parseAssignment(s string) (key, val string, err error) {
	i := strings.IndexByte(s, '=')
	if i < 0 {
		return "", "", fmt.Errorf("expected key = value, got %q", s)
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:]), nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func parseStringArray(s string) ([]string, error) {
	if !strings.HasPrefix(s, "[") || !strings.HasSuffix(s, "]") {
		return nil, fmt.Errorf("expected array, got %q", s)
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return nil, nil
	}
	parts := strings.Split(inner, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, unquote(strings.TrimSpace(p)))
	}
	return out, nil
}

func applyField(d *Descriptor, key, val string) error {
	switch key {
	case "console":
		d.Console = unquote(val)
	case "baud":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("baud: %w", err)
		}
		d.ConsoleBaud = n
	case "power_driver":
		d.PowerDriver = PowerDriver(unquote(val))
	case "usb_always_on":
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("usb_always_on: %w", err)
		}
		d.USBAlwaysOn = b
	case "usb_port":
		d.USBPortID = unquote(val)
	case "fastboot_vid":
		v, err := strconv.ParseUint(strings.TrimPrefix(unquote(val), "0x"), 16, 16)
		if err != nil {
			return fmt.Errorf("fastboot_vid: %w", err)
		}
		d.FastbootVID = uint16(v)
	case "fastboot_pid":
		v, err := strconv.ParseUint(strings.TrimPrefix(unquote(val), "0x"), 16, 16)
		if err != nil {
			return fmt.Errorf("fastboot_pid: %w", err)
		}
		d.FastbootPID = uint16(v)
	case "fastboot_key":
		d.FastbootKey = unquote(val)
	case "voltage_mv":
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("voltage_mv: %w", err)
		}
		d.VoltageMillis = n
	case "users":
		users, err := parseStringArray(val)
		if err != nil {
			return fmt.Errorf("users: %w", err)
		}
		for _, u := range users {
			d.ACL[u] = true
		}
	default:
		if strings.HasPrefix(key, "power_") {
			d.PowerParams[strings.TrimPrefix(key, "power_")] = unquote(val)
			return nil
		}
		return fmt.Errorf("unknown key %q", key)
	}
	return nil
}
