// Package lifecycle provides the run-state machine used by background
// udpcast services.
//
// A Manager tracks one of five states and rejects transitions that make no
// sense (for example Stopped -> Running). Services register their goroutines
// as workers so Stop can wait for them with a bounded timeout:
//
//	m := lifecycle.NewManager(logger, nil)
//	if err := m.TransitionTo(lifecycle.StateStarting, "start"); err != nil {
//	    return err
//	}
//	m.AddWorker()
//	go func() {
//	    defer m.WorkerDone()
//	    _ = m.TransitionTo(lifecycle.StateRunning, "bound")
//	    ...
//	}()
//
// Valid transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Stopping, Crashed
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting
package lifecycle
