// Package discovery implements lab-host advertisement and browsing via
// mDNS (spec.md's supplemented "lab-host discovery" component), grounded
// on the teacher's cmd/can-server/mdns.go use of zeroconf.
package discovery

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the mDNS service type cdba-server advertises under.
const ServiceType = "_cdba._tcp"

// Host describes one discovered lab host.
type Host struct {
	Instance string
	Addr     string
	Port     int
	Boards   []string
}

// Advertiser owns a registered zeroconf service and can reload its TXT
// records (the board list) in place, for cmd/cdba-discoveryd's SIGHUP
// handling.
type Advertiser struct {
	instance string
	port     int
	svc      *zeroconf.Server
}

// Advertise registers instance on port with an initial board list. An
// empty instance defaults to "cdba-server-<hostname>".
func Advertise(instance string, port int, boards []string) (*Advertiser, error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("cdba-server-%s", host)
	}
	svc, err := zeroconf.Register(instance, ServiceType, "local.", port, txtRecords(boards), nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}
	return &Advertiser{instance: instance, port: port, svc: svc}, nil
}

// Reload re-registers the service with a fresh board list, since
// zeroconf.Server has no in-place TXT update; this is what
// cmd/cdba-discoveryd calls on SIGHUP.
func (a *Advertiser) Reload(boards []string) error {
	a.svc.Shutdown()
	svc, err := zeroconf.Register(a.instance, ServiceType, "local.", a.port, txtRecords(boards), nil)
	if err != nil {
		return fmt.Errorf("discovery: reload: %w", err)
	}
	a.svc = svc
	return nil
}

// Shutdown withdraws the advertisement.
func (a *Advertiser) Shutdown() {
	if a.svc != nil {
		a.svc.Shutdown()
	}
}

func txtRecords(boards []string) []string {
	sorted := append([]string(nil), boards...)
	sort.Strings(sorted)
	return []string{"boards=" + strings.Join(sorted, ",")}
}

// Browse resolves every cdba-server advertised on the local network
// within timeout, used by the client's -D verb.
func Browse(ctx context.Context, timeout time.Duration) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolver: %w", err)
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	var hosts []Host
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range entries {
			h := Host{Instance: e.Instance, Port: e.Port}
			if len(e.AddrIPv4) > 0 {
				h.Addr = e.AddrIPv4[0].String()
			}
			for _, rec := range e.Text {
				if v, ok := strings.CutPrefix(rec, "boards="); ok && v != "" {
					h.Boards = strings.Split(v, ",")
				}
			}
			hosts = append(hosts, h)
		}
	}()
	bctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := resolver.Browse(bctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("discovery: browse: %w", err)
	}
	<-bctx.Done()
	<-done
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Instance < hosts[j].Instance })
	return hosts, nil
}
