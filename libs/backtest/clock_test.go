package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestClockOneShotAlertFiresOnce(t *testing.T) {
	c := NewTestClock(0)
	fired := 0
	c.SetTimeAlertNs("alert-1", 100, func(name string, ts int64) { fired++ })

	events := c.AdvanceTime(100)
	require.Len(t, events, 1)
	assert.Equal(t, "alert-1", events[0].Name)

	events[0].Fire()
	assert.Equal(t, 1, fired)

	// A second advance must not re-fire the one-shot.
	events = c.AdvanceTime(200)
	assert.Empty(t, events)
	assert.Equal(t, 1, fired)
}

func TestTestClockPeriodicTimerReschedules(t *testing.T) {
	c := NewTestClock(0)
	c.SetTimerNs("tick", 10, 10, func(name string, ts int64) {})

	events := c.AdvanceTime(35)
	require.Len(t, events, 3)
	assert.Equal(t, int64(10), events[0].TsEvent)
	assert.Equal(t, int64(20), events[1].TsEvent)
	assert.Equal(t, int64(30), events[2].TsEvent)

	assert.Contains(t, c.PendingNames(), "tick")
}

func TestTestClockAdvanceOrdersByTsEvent(t *testing.T) {
	c := NewTestClock(0)
	c.SetTimeAlertNs("b", 20, func(string, int64) {})
	c.SetTimeAlertNs("a", 10, func(string, int64) {})

	events := c.AdvanceTime(20)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Name)
	assert.Equal(t, "b", events[1].Name)
}

func TestMergeTimeEventsStableSortsAcrossBatches(t *testing.T) {
	batchA := []TimeEvent{{Name: "venue-a", TsEvent: 10}, {Name: "venue-a-2", TsEvent: 30}}
	batchB := []TimeEvent{{Name: "venue-b", TsEvent: 10}, {Name: "venue-b-2", TsEvent: 20}}

	merged := MergeTimeEvents(batchA, batchB)

	require.Len(t, merged, 4)
	assert.Equal(t, "venue-a", merged[0].Name)
	assert.Equal(t, "venue-b", merged[1].Name)
	assert.Equal(t, int64(20), merged[2].TsEvent)
	assert.Equal(t, int64(30), merged[3].TsEvent)
}

func TestTestClockCancelTimerRemovesIt(t *testing.T) {
	c := NewTestClock(0)
	c.SetTimeAlertNs("gone", 10, func(string, int64) {})
	c.CancelTimer("gone")

	events := c.AdvanceTime(10)
	assert.Empty(t, events)
	assert.Empty(t, c.PendingNames())
}
