package timer

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultWarningThreshold is the remaining time, in seconds, at which the one-shot warning fires.
const DefaultWarningThreshold = 10.0

// Hooks receives timer notifications. Nil hooks are skipped.
type Hooks struct {
	// OnTick fires once per whole elapsed second. remaining is negative for untimed matches.
	OnTick     func(remaining, elapsed float64)
	OnWarning  func(remaining float64)
	OnExpired  func()
	OnGraceEnd func()
}

// Timer tracks elapsed match time against a limit plus a grace period.
// It never reads the wall clock: time only moves through Advance. Seconds are
// converted to durations at the API edge so fractional ticks sum exactly.
type Timer struct {
	total    time.Duration
	grace    time.Duration
	adjust   time.Duration
	elapsed  time.Duration
	lastTick int64

	warningThreshold time.Duration
	warningFired     bool

	running    bool
	paused     bool
	expired    bool
	inGrace    bool
	graceEnded bool

	hooks Hooks
}

// New creates a timer for totalSeconds (0 = untimed) with the given grace period.
// Negative inputs are clamped to zero.
func New(totalSeconds, gracePeriodSeconds float64, hooks Hooks) *Timer {
	t := &Timer{
		warningThreshold: duration(DefaultWarningThreshold),
		hooks:            hooks,
	}
	t.Configure(totalSeconds, gracePeriodSeconds)
	return t
}

// Configure sets the limit and grace period and resets all progress.
func (t *Timer) Configure(totalSeconds, gracePeriodSeconds float64) {
	t.total = duration(totalSeconds)
	t.grace = duration(gracePeriodSeconds)
	t.Reset()
}

// SetWarningThreshold changes when the time warning fires.
func (t *Timer) SetWarningThreshold(seconds float64) {
	t.warningThreshold = duration(seconds)
}

// duration converts seconds to a duration rounded to the nanosecond, clamping negatives to zero.
func duration(seconds float64) time.Duration {
	return time.Duration(math.Round(math.Max(seconds, 0) * float64(time.Second)))
}

// SetHooks replaces the notification hooks.
func (t *Timer) SetHooks(h Hooks) {
	t.hooks = h
}

// Start begins accumulating time from the current elapsed value.
func (t *Timer) Start() {
	if t.graceEnded {
		return
	}
	t.running = true
	t.paused = false
}

// Stop halts the timer without clearing progress.
func (t *Timer) Stop() {
	t.running = false
	t.paused = false
}

func (t *Timer) Pause() {
	if t.running {
		t.paused = true
	}
}

func (t *Timer) Resume() {
	if t.running {
		t.paused = false
	}
}

// Reset clears elapsed time, adjustments and every flag.
func (t *Timer) Reset() {
	t.adjust = 0
	t.elapsed = 0
	t.lastTick = 0
	t.warningFired = false
	t.running = false
	t.paused = false
	t.expired = false
	t.inGrace = false
	t.graceEnded = false
}

// AddTime extends the limit. It can un-expire the timer while the grace period is still open.
func (t *Timer) AddTime(seconds float64) {
	if seconds <= 0 || t.IsUntimed() {
		return
	}
	t.adjust += duration(seconds)
	remaining := t.remaining()
	if remaining > 0 && t.expired && !t.graceEnded {
		t.expired = false
		t.inGrace = false
		log.Debug().Dur("remaining", remaining).Msg("timer un-expired by added time")
	}
	if remaining > t.warningThreshold {
		t.warningFired = false
	}
}

// RemoveTime shortens the limit, typically as a penalty, and re-runs the expiration checks.
func (t *Timer) RemoveTime(seconds float64) {
	if seconds <= 0 || t.IsUntimed() {
		return
	}
	t.adjust -= duration(seconds)
	t.checkThresholds()
}

// Advance accumulates deltaSeconds. The host calls it on every scheduling tick.
func (t *Timer) Advance(deltaSeconds float64) {
	if !t.running || t.paused || deltaSeconds <= 0 {
		return
	}
	t.elapsed += duration(deltaSeconds)

	whole := int64(t.elapsed / time.Second)
	if whole > t.lastTick {
		t.lastTick = whole
		if t.hooks.OnTick != nil {
			remaining := -1.0
			if !t.IsUntimed() {
				remaining = t.Remaining()
			}
			t.hooks.OnTick(remaining, t.Elapsed())
		}
	}

	t.checkThresholds()
}

func (t *Timer) checkThresholds() {
	if t.IsUntimed() {
		return
	}
	remaining := t.remaining()

	if !t.warningFired && remaining <= t.warningThreshold {
		t.warningFired = true
		if t.hooks.OnWarning != nil {
			t.hooks.OnWarning(remaining.Seconds())
		}
	}

	if !t.expired && remaining <= 0 {
		t.expired = true
		t.warningFired = true
		if t.grace > 0 {
			t.inGrace = true
		}
		if t.hooks.OnExpired != nil {
			t.hooks.OnExpired()
		}
	}

	if t.expired && !t.graceEnded && remaining+t.grace <= 0 {
		t.graceEnded = true
		t.inGrace = false
		t.running = false
		if t.hooks.OnGraceEnd != nil {
			t.hooks.OnGraceEnd()
		}
	}
}

func (t *Timer) remaining() time.Duration {
	if t.IsUntimed() {
		return 0
	}
	return t.total + t.adjust - t.elapsed
}

// Limit is the effective limit including added or removed time.
func (t *Timer) Limit() float64 {
	if t.IsUntimed() {
		return 0
	}
	return (t.total + t.adjust).Seconds()
}

// Remaining is the time left before expiry; negative once expired. Zero for untimed timers.
func (t *Timer) Remaining() float64 {
	return t.remaining().Seconds()
}

// GraceRemaining is the time left before the grace period ends.
func (t *Timer) GraceRemaining() float64 {
	if t.IsUntimed() {
		return 0
	}
	return max(t.remaining()+t.grace, 0).Seconds()
}

func (t *Timer) Elapsed() float64          { return t.elapsed.Seconds() }
func (t *Timer) GracePeriod() float64      { return t.grace.Seconds() }
func (t *Timer) IsUntimed() bool           { return t.total == 0 }
func (t *Timer) IsRunning() bool           { return t.running }
func (t *Timer) IsPaused() bool            { return t.paused }
func (t *Timer) IsExpired() bool           { return t.expired }
func (t *Timer) IsInGrace() bool           { return t.inGrace }
func (t *Timer) GraceEnded() bool          { return t.graceEnded }
func (t *Timer) WarningFired() bool        { return t.warningFired }
func (t *Timer) WarningThreshold() float64 { return t.warningThreshold.Seconds() }
