// Command cdba-discoveryd advertises a lab host's board inventory over
// mDNS so operators can find it with the client's -D verb, reloading
// the advertised board list whenever it receives SIGHUP (e.g. after
// the inventory file is edited), grounded on the teacher's
// cmd/can-server/mdns.go zeroconf usage.
package main

import (
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/2lambda123/linux-msm-cdba/internal/board"
	"github.com/2lambda123/linux-msm-cdba/internal/discovery"
	"github.com/2lambda123/linux-msm-cdba/internal/logging"
)

func main() {
	inventoryPath := flag.String("inventory", "", "Board inventory path (default: .cdba, then /etc/cdba)")
	instance := flag.String("name", "", "mDNS instance name (default cdba-server-<hostname>)")
	port := flag.Int("port", 22, "Port advertised for the ssh-reachable cdba-server")
	flag.Parse()

	l := logging.New("text", nil, os.Stderr).With("app", "cdba-discoveryd")

	boards, err := loadBoardNames(*inventoryPath)
	if err != nil {
		l.Error("inventory_load_failed", "error", err)
		os.Exit(1)
	}

	adv, err := discovery.Advertise(*instance, *port, boards)
	if err != nil {
		l.Error("advertise_failed", "error", err)
		os.Exit(1)
	}
	defer adv.Shutdown()
	l.Info("advertising", "service", discovery.ServiceType, "boards", len(boards))

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
	for sig := range sigCh {
		if sig != syscall.SIGHUP {
			l.Info("shutdown_signal", "signal", sig.String())
			return
		}
		boards, err := loadBoardNames(*inventoryPath)
		if err != nil {
			l.Warn("inventory_reload_failed", "error", err)
			continue
		}
		if err := adv.Reload(boards); err != nil {
			l.Warn("reload_failed", "error", err)
			continue
		}
		l.Info("reloaded", "boards", len(boards))
	}
}

func loadBoardNames(path string) ([]string, error) {
	var inv *board.Inventory
	var err error
	if path != "" {
		inv, err = board.Load(path)
	} else {
		inv, err = board.LoadDefault()
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(inv.Boards))
	for name := range inv.Boards {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
