package cliconfig

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are not overridden.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyListenEnv applies UDPCAST_* variables to a ListenConfig.
// Explicitly set flags win.
func ApplyListenEnv(cfg *ListenConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("bind", os.Getenv("UDPCAST_BIND_ADDR"), &cfg.BindAddr)
	s.setString("label", os.Getenv("UDPCAST_LABEL"), &cfg.Label)
	s.setString("report", os.Getenv("UDPCAST_REPORT"), &cfg.Report)
	s.setString("log-level", os.Getenv("UDPCAST_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("port", os.Getenv("UDPCAST_PORT"), &cfg.Port); err != nil {
		return err
	}
	if err := s.setIntFromString("buffer-size", os.Getenv("UDPCAST_BUFFER_SIZE"), &cfg.BufferSize); err != nil {
		return err
	}

	s.setBoolFromString("reuse-addr", os.Getenv("UDPCAST_REUSE_ADDR"), &cfg.ReuseAddr)
	s.setBoolFromString("show-sender", os.Getenv("UDPCAST_SHOW_SENDER"), &cfg.ShowSender)
	s.setBoolFromString("watch-config", os.Getenv("UDPCAST_WATCH_CONFIG"), &cfg.WatchConfig)
	return nil
}

// ApplySendEnv applies UDPCAST_* variables to a SendConfig.
// Explicitly set flags win.
func ApplySendEnv(cfg *SendConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("addr", os.Getenv("UDPCAST_BROADCAST_ADDR"), &cfg.BroadcastAddr)
	s.setString("log-level", os.Getenv("UDPCAST_LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setDuration("timeout", os.Getenv("UDPCAST_SEND_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}
	if err := s.setDuration("wait", os.Getenv("UDPCAST_WAIT"), &cfg.Wait); err != nil {
		return err
	}

	s.setBoolFromString("reuse-addr", os.Getenv("UDPCAST_REUSE_ADDR"), &cfg.ReuseAddr)
	return nil
}
