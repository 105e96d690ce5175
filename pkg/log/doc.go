// Package log provides the logging abstraction used by udpcast components.
//
// Components depend on the Logger interface only. The CLIs pass a zerolog
// adapter; tests pass the no-op logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	l, err := udpcast.NewListener(cfg, handler, udpcast.WithLogger(logger))
//
// Datagram reports written by the listener are not log output and never go
// through this package unless the log reporter is selected.
package log
