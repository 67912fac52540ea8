// Package config resolves Short Circuit's startup tunables from defaults,
// environment variables, and CLI flags, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable named in the external-interfaces table.
// Zero-value Config is never valid; use Default to obtain a populated
// starting point.
type Config struct {
	ListenPort    uint16
	ListenBacklog int

	ConnectionTimeout  time.Duration
	ConnectionPoolSize int

	RecvBufInitial int
	RecvBufMax     int
	SendBufInitial int
	SendBufMax     int

	// URingEntries is the completion ring's requested submission-queue
	// depth, rounded down to a power of two and halved on each setup
	// failure toward a floor of 512.
	URingEntries uint32

	HTTPRequestLineMax    int
	HTTPHeaderMax         int
	HTTPRequestContentMax int
	HTTPErrorBodyMax      int

	IndexFilename string

	WebRoot string

	// Verbosity is positive for -v, negative for -q, zero by default.
	Verbosity int
}

// Default returns the table's documented defaults.
func Default() Config {
	return Config{
		ListenPort:            8000,
		ListenBacklog:         1024,
		ConnectionTimeout:     60 * time.Second,
		ConnectionPoolSize:    1280,
		RecvBufInitial:        2048,
		RecvBufMax:            10240,
		SendBufInitial:        2048,
		SendBufMax:            20480,
		URingEntries:          2048,
		HTTPRequestLineMax:    2048,
		HTTPHeaderMax:         2048,
		HTTPRequestContentMax: 10240,
		HTTPErrorBodyMax:      512,
		IndexFilename:         "index.html",
		WebRoot:               ".",
	}
}

// envOverrides is applied between Default and flag parsing, so that a
// flag always wins over its environment variable, and the environment
// variable always wins over the built-in default.
func envOverrides(c *Config) error {
	overrides := []struct {
		name string
		set  func(string) error
	}{
		{"LISTEN_PORT", func(v string) error { return setUint16(&c.ListenPort, v) }},
		{"LISTEN_BACKLOG", func(v string) error { return setInt(&c.ListenBacklog, v) }},
		{"CONNECTION_TIMEOUT", func(v string) error { return setSeconds(&c.ConnectionTimeout, v) }},
		{"CONNECTION_POOL_SIZE", func(v string) error { return setInt(&c.ConnectionPoolSize, v) }},
		{"RECV_BUF_INITIAL", func(v string) error { return setInt(&c.RecvBufInitial, v) }},
		{"RECV_BUF_MAX", func(v string) error { return setInt(&c.RecvBufMax, v) }},
		{"SEND_BUF_INITIAL", func(v string) error { return setInt(&c.SendBufInitial, v) }},
		{"SEND_BUF_MAX", func(v string) error { return setInt(&c.SendBufMax, v) }},
		{"URING_ENTRIES", func(v string) error { return setUint32(&c.URingEntries, v) }},
		{"HTTP_REQUEST_LINE_MAX", func(v string) error { return setInt(&c.HTTPRequestLineMax, v) }},
		{"HTTP_HEADER_MAX", func(v string) error { return setInt(&c.HTTPHeaderMax, v) }},
		{"HTTP_REQUEST_CONTENT_MAX", func(v string) error { return setInt(&c.HTTPRequestContentMax, v) }},
		{"HTTP_ERROR_BODY_MAX", func(v string) error { return setInt(&c.HTTPErrorBodyMax, v) }},
		{"INDEX_FILENAME", func(v string) error { c.IndexFilename = v; return nil }},
	}
	for _, o := range overrides {
		v, ok := os.LookupEnv(o.name)
		if !ok || v == "" {
			continue
		}
		if err := o.set(v); err != nil {
			return fmt.Errorf("config: %s: %w", o.name, err)
		}
	}
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func setUint16(dst *uint16, v string) error {
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return err
	}
	*dst = uint16(n)
	return nil
}

func setUint32(dst *uint32, v string) error {
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return err
	}
	*dst = uint32(n)
	return nil
}

func setSeconds(dst *time.Duration, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = time.Duration(n) * time.Second
	return nil
}

// Validate reports a startup-misconfiguration error (the CLI's
// non-zero-exit-code case) for any field outside an acceptable range.
func (c Config) Validate() error {
	if c.ListenPort == 0 {
		return fmt.Errorf("config: listen port must be nonzero")
	}
	if c.RecvBufMax < c.RecvBufInitial {
		return fmt.Errorf("config: RECV_BUF_MAX must be >= RECV_BUF_INITIAL")
	}
	if c.SendBufMax < c.SendBufInitial {
		return fmt.Errorf("config: SEND_BUF_MAX must be >= SEND_BUF_INITIAL")
	}
	if c.ConnectionPoolSize <= 0 {
		return fmt.Errorf("config: CONNECTION_POOL_SIZE must be positive")
	}
	if c.URingEntries == 0 {
		return fmt.Errorf("config: URING_ENTRIES must be nonzero")
	}
	info, err := os.Stat(c.WebRoot)
	if err != nil {
		return fmt.Errorf("config: web root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: web root %q is not a directory", c.WebRoot)
	}
	return nil
}

// FromEnv builds a Config starting from Default, applying environment
// variable overrides.
func FromEnv() (Config, error) {
	c := Default()
	if err := envOverrides(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}
