package cliconfig

import (
	"fmt"
	"net/netip"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/udpcast/pkg/udpcast"
)

// Report formats for the listener.
const (
	ReportText = "text"
	ReportLog  = "log"
)

// ListenConfig holds CLI configuration for udpcast-listen.
type ListenConfig struct {
	BindAddr   string
	Port       int
	BufferSize int
	ReuseAddr  bool

	Label      string
	ShowSender bool
	Report     string

	LogLevel    string
	WatchConfig bool
}

// DefaultListenConfig returns a ListenConfig with default values.
func DefaultListenConfig() ListenConfig {
	return ListenConfig{
		BindAddr:   udpcast.DefaultBindAddr,
		Port:       udpcast.DefaultPort,
		BufferSize: udpcast.DefaultBufferSize,
		Label:      udpcast.DefaultLabel,
		Report:     ReportText,
		LogLevel:   "info",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *ListenConfig) Validate() error {
	if c.Label == "" {
		c.Label = udpcast.DefaultLabel
	}
	if c.Report == "" {
		c.Report = ReportText
	}
	if c.Report != ReportText && c.Report != ReportLog {
		return fmt.Errorf("report must be %q or %q, got %q", ReportText, ReportLog, c.Report)
	}
	if err := validateLogLevel(&c.LogLevel); err != nil {
		return err
	}
	lc := c.Listener()
	if err := lc.Validate(); err != nil {
		return err
	}
	c.BindAddr = lc.BindAddr
	return nil
}

// Listener returns the socket part of the config.
func (c ListenConfig) Listener() udpcast.ListenerConfig {
	return udpcast.ListenerConfig{
		BindAddr:   c.BindAddr,
		Port:       c.Port,
		BufferSize: c.BufferSize,
		ReuseAddr:  c.ReuseAddr,
	}
}

// SendConfig holds CLI configuration for udpcast-send.
type SendConfig struct {
	Port    int
	Message string

	BroadcastAddr string
	ReuseAddr     bool

	// Timeout bounds the write; zero means no deadline.
	Timeout time.Duration
	// Wait keeps the socket open this long to report replies.
	Wait time.Duration
	// ReplyBufferSize bounds each reply read during Wait.
	ReplyBufferSize int

	LogLevel string
}

// DefaultSendConfig returns a SendConfig with default values.
func DefaultSendConfig() SendConfig {
	return SendConfig{
		BroadcastAddr:   udpcast.BroadcastAddr.String(),
		ReuseAddr:       true,
		Timeout:         5 * time.Second,
		ReplyBufferSize: udpcast.DefaultResponseBufferSize,
		LogLevel:        "info",
	}
}

// ParseSendArgs fills Port and Message from the positional arguments.
// Fewer than two arguments is a usage error; extra arguments are ignored.
func ParseSendArgs(program string, args []string, cfg *SendConfig) error {
	if len(args) < 2 {
		return &UsageError{Program: program}
	}
	port, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", args[0], err)
	}
	cfg.Port = port
	cfg.Message = args[1]
	return nil
}

// Validate checks the configuration for errors.
func (c *SendConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if _, err := c.Broadcaster(); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.Wait < 0 {
		return fmt.Errorf("wait must not be negative")
	}
	if c.ReplyBufferSize <= 0 {
		return fmt.Errorf("reply buffer size must be positive, got %d", c.ReplyBufferSize)
	}
	return validateLogLevel(&c.LogLevel)
}

// Broadcaster returns the socket part of the config.
func (c SendConfig) Broadcaster() (udpcast.BroadcasterConfig, error) {
	addr, err := netip.ParseAddr(c.BroadcastAddr)
	if err != nil {
		return udpcast.BroadcasterConfig{}, fmt.Errorf("parse broadcast address: %w", err)
	}
	bc := udpcast.BroadcasterConfig{Addr: addr, Port: c.Port, ReuseAddr: c.ReuseAddr}
	if err := bc.Validate(); err != nil {
		return udpcast.BroadcasterConfig{}, err
	}
	return bc, nil
}

func validateLogLevel(level *string) error {
	if *level == "" {
		*level = "info"
	}
	if _, err := zerolog.ParseLevel(*level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// configSetter applies values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString is setInt for environment values.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
