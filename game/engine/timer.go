package engine

import "time"

// TimeStatus is the derived clock of a session at a point in time.
// Nothing here is stored; it is recomputed from the creation timestamp on every read.
type TimeStatus struct {
	Limited    bool
	Limit      time.Duration
	Elapsed    time.Duration
	Remaining  time.Duration
	Expired    bool
	ServerTime time.Time
}

// ComputeTime derives elapsed and remaining time for a level limit in seconds
func ComputeTime(createdAt time.Time, limitSeconds int, now time.Time) TimeStatus {
	elapsed := now.Sub(createdAt)
	if elapsed < 0 {
		elapsed = 0
	}
	ts := TimeStatus{
		Limited:    limitSeconds > 0,
		Elapsed:    elapsed,
		ServerTime: now,
	}
	if !ts.Limited {
		return ts
	}
	ts.Limit = time.Duration(limitSeconds) * time.Second
	ts.Remaining = ts.Limit - elapsed
	if ts.Remaining <= 0 {
		ts.Remaining = 0
		ts.Expired = true
	}
	return ts
}

// SessionTime derives the clock for a session. Finished sessions are frozen at completion.
func SessionTime(s *Session, now time.Time) TimeStatus {
	at := now
	if s.Status.Terminal() && s.CompletedAt != nil {
		at = *s.CompletedAt
	}
	ts := ComputeTime(s.CreatedAt, s.Level.TimeLimit, at)
	ts.ServerTime = now
	return ts
}

// RemainingSeconds is the remaining time rounded up to whole seconds, nil when
// unlimited. It only reads 0 once the clock has expired.
func (t TimeStatus) RemainingSeconds() *int {
	if !t.Limited {
		return nil
	}
	secs := int((t.Remaining + time.Second - 1) / time.Second)
	return &secs
}

// ElapsedSeconds returns elapsed time with millisecond precision
func (t TimeStatus) ElapsedSeconds() float64 {
	return float64(t.Elapsed.Milliseconds()) / 1000
}
