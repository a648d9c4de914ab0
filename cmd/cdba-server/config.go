package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

type appConfig struct {
	inventoryPath string
	fastbootBin   string
	logFormat     string
	logLevel      string
	metricsAddr   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	inventory := flag.String("inventory", "", "Board inventory path (default: .cdba, then /etc/cdba)")
	fastbootBin := flag.String("fastboot", "fastboot", "Path to the fastboot binary")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.inventoryPath = *inventory
	cfg.fastbootBin = *fastbootBin
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr

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
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	return nil
}

// applyEnvOverrides maps CDBA_SERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	if _, ok := set["inventory"]; !ok {
		if v, ok := get("CDBA_SERVER_INVENTORY"); ok && v != "" {
			c.inventoryPath = v
		}
	}
	if _, ok := set["fastboot"]; !ok {
		if v, ok := get("CDBA_SERVER_FASTBOOT"); ok && v != "" {
			c.fastbootBin = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CDBA_SERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CDBA_SERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CDBA_SERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	return firstErr
}
