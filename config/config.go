package config

import "flag"

// Config carries the construction-time knobs for selectorecho: what
// address to listen on, and how the underlying Selector should be built.
type Config struct {
	ListenAddr      string
	InitialCapacity int
	TraceSyscalls   bool
}

// New parses flags into a Config. It is meant to be called once, from main.
func New() *Config {
	cfg := &Config{}

	flag.StringVar(&cfg.ListenAddr, "listen", "127.0.0.1:9090", "address selectorecho listens on")
	flag.IntVar(&cfg.InitialCapacity, "capacity", 64, "initial selector event-buffer capacity")
	flag.BoolVar(&cfg.TraceSyscalls, "trace-syscalls", false, "enable per-syscall latency tracing")

	flag.Parse()
	return cfg
}
