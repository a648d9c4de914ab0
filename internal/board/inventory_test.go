package board

import (
	"strings"
	"testing"
)

const sampleInventory = `
# lab rack 3
[db845c]
console = "/dev/ttyUSB0"
baud = 115200
power_driver = "relay"
power_channel = "4"
usb_port = "1-2.3"
fastboot_vid = 0x18d1
fastboot_pid = 0xd00d
fastboot_key = "vol-down+power"
users = ["alice", "bob"]

[secret-board]
console = "/dev/ttyUSB1"
power_driver = "none"
users = ["alice"]
`

func TestParse(t *testing.T) {
	boards, err := parse(strings.NewReader(sampleInventory))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(boards) != 2 {
		t.Fatalf("len(boards) = %d, want 2", len(boards))
	}

	db := boards["db845c"]
	if db == nil {
		t.Fatalf("missing db845c")
	}
	if db.Console != "/dev/ttyUSB0" || db.ConsoleBaud != 115200 {
		t.Fatalf("db845c console fields: %+v", db)
	}
	if db.PowerDriver != PowerDriverRelay || db.PowerParams["channel"] != "4" {
		t.Fatalf("db845c power fields: %+v", db)
	}
	if db.FastbootVID != 0x18d1 || db.FastbootPID != 0xd00d {
		t.Fatalf("db845c fastboot ids: %04x:%04x", db.FastbootVID, db.FastbootPID)
	}
	if !db.Allows("alice") || !db.Allows("bob") || db.Allows("eve") {
		t.Fatalf("db845c ACL wrong: %+v", db.ACL)
	}

	secret := boards["secret-board"]
	if secret.Allows("bob") {
		t.Fatalf("secret-board should deny bob")
	}
	if !secret.Allows("alice") {
		t.Fatalf("secret-board should allow alice")
	}
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := parse(strings.NewReader("[x]\nbogus = 1\n"))
	if err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestParse_AssignmentOutsideTable(t *testing.T) {
	_, err := parse(strings.NewReader("console = \"/dev/ttyUSB0\"\n"))
	if err == nil {
		t.Fatalf("expected error for assignment before any table header")
	}
}

func TestDescriptor_AllowsEmptyACLMeansOpen(t *testing.T) {
	d := &Descriptor{Name: "open-board"}
	if !d.Allows("anyone") {
		t.Fatalf("board with no ACL should allow any user")
	}
}

func TestDescriptor_Info(t *testing.T) {
	d := &Descriptor{
		Name: "db845c", Console: "/dev/ttyUSB0", ConsoleBaud: 115200,
		PowerDriver: PowerDriverRelay, FastbootVID: 0x18d1, FastbootPID: 0xd00d,
	}
	info := d.Info()
	if !strings.Contains(info, "db845c") || !strings.Contains(info, "18d1:d00d") {
		t.Fatalf("unexpected Info(): %q", info)
	}
}
