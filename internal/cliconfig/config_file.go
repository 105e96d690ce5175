package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors ListenConfig for TOML. Pointer fields distinguish
// "unset" from false.
type FileConfig struct {
	BindAddr   string `toml:"bind_addr"`
	Port       int    `toml:"port"`
	BufferSize int    `toml:"buffer_size"`
	ReuseAddr  *bool  `toml:"reuse_addr"`
	Label      string `toml:"label"`
	ShowSender *bool  `toml:"show_sender"`
	Report     string `toml:"report"`
	LogLevel   string `toml:"log_level"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.udpcast/listen.toml, or "" if the home
// directory is unknown.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".udpcast", "listen.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file, skipping flags that
// were set explicitly.
func ApplyFileConfig(cfg *ListenConfig, fc FileConfig, changed map[string]bool) {
	s := newConfigSetter(changed)

	s.setString("bind", fc.BindAddr, &cfg.BindAddr)
	s.setString("label", fc.Label, &cfg.Label)
	s.setString("report", fc.Report, &cfg.Report)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("port", fc.Port, &cfg.Port)
	s.setInt("buffer-size", fc.BufferSize, &cfg.BufferSize)

	s.setBool("reuse-addr", fc.ReuseAddr, &cfg.ReuseAddr)
	s.setBool("show-sender", fc.ShowSender, &cfg.ShowSender)
}

// LoadListenConfig layers the config file (if it exists) and UDPCAST_*
// environment variables over base, then validates. base carries defaults
// and flag values; changed names the flags set on the command line.
func LoadListenConfig(base ListenConfig, path string, changed map[string]bool) (ListenConfig, error) {
	cfg := base
	if path != "" && FileExists(path) {
		fc, err := LoadFileConfig(path)
		if err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
		ApplyFileConfig(&cfg, fc, changed)
	}
	if err := ApplyListenEnv(&cfg, changed); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
