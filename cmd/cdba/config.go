package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type appConfig struct {
	board             string
	host              string
	totalTimeout      time.Duration
	inactivityTimeout time.Duration
	powerCycles       int
	cycleOnTimeout    bool
	repeatBoot        bool
	serverBin         string
	infoVerb          bool
	listVerb          bool
	discoverVerb      bool
	imagePath         string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	board := flag.String("b", "", "Board name")
	host := flag.String("h", "", "Remote shell target (user@host)")
	total := flag.Int("t", 600, "Total session timeout, seconds")
	inactivity := flag.Int("T", 0, "Inactivity timeout, seconds (0 disables)")
	cycles := flag.Int("c", 0, "Power-cycle count (retries on timeout or power-off)")
	cyclesNoTimeout := flag.Int("C", -1, "Power-cycle count, but never retry on timeout")
	repeat := flag.Bool("R", false, "Repeat boot streaming each time fastboot reappears")
	serverBin := flag.String("S", "cdba-server", "Server binary to exec remotely")
	info := flag.Bool("i", false, "Info verb")
	list := flag.Bool("l", false, "List verb")
	discover := flag.Bool("D", false, "Discover lab hosts via mDNS and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.board = *board
	cfg.host = *host
	cfg.totalTimeout = time.Duration(*total) * time.Second
	cfg.inactivityTimeout = time.Duration(*inactivity) * time.Second
	cfg.repeatBoot = *repeat
	cfg.serverBin = *serverBin
	cfg.infoVerb = *info
	cfg.listVerb = *list
	cfg.discoverVerb = *discover

	if _, ok := setFlags["C"]; ok {
		cfg.powerCycles = *cyclesNoTimeout
		cfg.cycleOnTimeout = false
	} else {
		cfg.powerCycles = *cycles
		cfg.cycleOnTimeout = true
	}
	if flag.NArg() > 0 {
		cfg.imagePath = flag.Arg(0)
	}

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if c.discoverVerb {
		return nil
	}
	if c.host == "" {
		return errors.New("missing -h host")
	}
	if !c.listVerb && c.board == "" {
		return errors.New("missing -b board")
	}
	if c.totalTimeout <= 0 {
		return errors.New("-t must be > 0")
	}
	if c.powerCycles < 0 {
		return errors.New("power-cycle count must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps CDBA_* environment variables to config fields
// unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["b"]; !ok {
		if v, ok := get("CDBA_BOARD"); ok && v != "" {
			c.board = v
		}
	}
	if _, ok := set["h"]; !ok {
		if v, ok := get("CDBA_HOST"); ok && v != "" {
			c.host = v
		}
	}
	if _, ok := set["S"]; !ok {
		if v, ok := get("CDBA_SERVER_BIN"); ok && v != "" {
			c.serverBin = v
		}
	}
	return nil
}
