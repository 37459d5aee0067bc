package syncer

// TimerCount reports the number of registered periodic re-sync timers.
// This file only compiles during `go test`.
func (o *Orchestrator) TimerCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.timers)
}
