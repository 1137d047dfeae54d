package core

// Timeline keeps the engine's versioned clock monotonic. Command timestamps
// come from callers; one that arrives earlier than the last applied command
// is clamped forward rather than rejected, so transaction timestamps never
// regress. Not thread-safe; only accessed under the engine lock.
type Timeline struct {
	last    int64 // Epoch milliseconds of the last applied command
	metrics *TimelineMetrics
}

func NewTimeline(start int64) *Timeline {
	return &Timeline{
		last:    start,
		metrics: &TimelineMetrics{},
	}
}

// Peek returns the effective timestamp for a command without committing it.
func (tl *Timeline) Peek(at int64) int64 {
	if at < tl.last {
		return tl.last
	}
	return at
}

// Commit records an applied command's effective timestamp.
func (tl *Timeline) Commit(requested, effective int64) {
	if requested < effective {
		tl.metrics.regressions++
	}
	tl.last = effective
}

// Last returns the last committed timestamp.
func (tl *Timeline) Last() int64 {
	return tl.last
}

// Restore sets the clock during recovery.
func (tl *Timeline) Restore(last int64) {
	tl.last = last
}

// Regressions returns how many commands were clamped forward.
func (tl *Timeline) Regressions() int64 {
	return tl.metrics.regressions
}

// --- Metrics ---

// TimelineMetrics tracks clamp stats.
type TimelineMetrics struct {
	regressions int64
}
