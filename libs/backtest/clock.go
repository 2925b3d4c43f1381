package backtest

import "sort"

// TimeEventHandler is invoked when a scheduled alert or periodic timer fires.
// name is the handler's registered name and tsEvent is the nanosecond
// instant the timer was scheduled for.
type TimeEventHandler func(name string, tsEvent int64)

// TimeEvent is a fired (but not-yet-delivered) timer, carrying enough to
// sort and re-invoke it.
type TimeEvent struct {
	Name    string
	TsEvent int64
	handler TimeEventHandler
}

// Fire invokes the handler.
func (e TimeEvent) Fire() { e.handler(e.Name, e.TsEvent) }

type timer struct {
	name     string
	next     int64
	interval int64 // 0 for one-shot
	handler  TimeEventHandler
}

// TestClock holds simulation time as integer nanoseconds and fires
// registered one-shot alerts and periodic timers in non-decreasing ts_event
// order as the engine advances it.
type TestClock struct {
	now    int64
	timers map[string]*timer
}

// NewTestClock creates a TestClock starting at tsInit nanoseconds.
func NewTestClock(tsInit int64) *TestClock {
	return &TestClock{now: tsInit, timers: make(map[string]*timer)}
}

// Now returns the clock's current simulation time in nanoseconds.
func (c *TestClock) Now() int64 { return c.now }

// SetTimeAlertNs registers a one-shot alert firing at tsEvent.
func (c *TestClock) SetTimeAlertNs(name string, tsEvent int64, handler TimeEventHandler) {
	c.timers[name] = &timer{name: name, next: tsEvent, handler: handler}
}

// SetTimerNs registers a periodic timer: first fire at firstTsEvent, then
// every interval nanoseconds thereafter.
func (c *TestClock) SetTimerNs(name string, firstTsEvent, interval int64, handler TimeEventHandler) {
	c.timers[name] = &timer{name: name, next: firstTsEvent, interval: interval, handler: handler}
}

// CancelTimer removes a registered timer by name, if present.
func (c *TestClock) CancelTimer(name string) { delete(c.timers, name) }

// AdvanceTime moves the clock forward to nowNs and returns, in non-decreasing
// TsEvent order, every timer whose scheduled instant is in (current, nowNs].
// Events scheduled strictly before nowNs are the caller's responsibility to
// fire immediately; events scheduled exactly at nowNs are returned alongside
// them and the engine decides when to deliver them relative to the current
// data item.
func (c *TestClock) AdvanceTime(nowNs int64) []TimeEvent {
	if nowNs < c.now {
		return nil
	}
	var events []TimeEvent
	for _, t := range c.timers {
		for t.next <= nowNs {
			events = append(events, TimeEvent{Name: t.name, TsEvent: t.next, handler: t.handler})
			if t.interval <= 0 {
				delete(c.timers, t.name)
				break
			}
			t.next += t.interval
		}
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].TsEvent < events[j].TsEvent })
	c.now = nowNs
	return events
}

// PendingNames returns the names of all currently registered timers, sorted,
// for diagnostics/tests.
func (c *TestClock) PendingNames() []string {
	names := make([]string, 0, len(c.timers))
	for name := range c.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MergeTimeEvents merges the outputs of several TestClocks (one per venue or
// strategy) into a single stably-sorted TsEvent-ordered sequence.
func MergeTimeEvents(batches ...[]TimeEvent) []TimeEvent {
	var merged []TimeEvent
	for _, b := range batches {
		merged = append(merged, b...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].TsEvent < merged[j].TsEvent })
	return merged
}
