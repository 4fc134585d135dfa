package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/job"
)

func TestPublishFansOut(t *testing.T) {
	h := NewHub()
	a, b := h.Subscribe(), h.Subscribe()
	h.Publish("x")
	assert.Equal(t, "x", <-a)
	assert.Equal(t, "x", <-b)

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	assert.Equal(t, 1, h.Len())
	_, open := <-a
	assert.False(t, open)
}

func TestSlowSubscriberDropped(t *testing.T) {
	h := NewHub()
	slow := h.Subscribe()
	fast := h.Subscribe()

	for i := 0; i < subscriberBuffer; i++ {
		h.Publish("e")
		<-fast
	}
	h.Publish("overflow")
	assert.Equal(t, "overflow", <-fast)
	assert.Equal(t, 1, h.Len())

	n := 0
	for range slow {
		n++
	}
	assert.Equal(t, subscriberBuffer, n)

	h.Unsubscribe(slow)
}

func TestJobObserverEnvelope(t *testing.T) {
	h := NewHub()
	ch := h.Subscribe()
	o := JobObserver{Hub: h}

	require.NoError(t, o.OnProgress(job.Progress{OperationID: "op", CompletedLocations: 2}))
	require.NoError(t, o.OnLog(job.LogEntry{OperationID: "op", Level: job.LevelInfo, Message: "hi"}))

	var e Event
	require.NoError(t, json.Unmarshal([]byte(<-ch), &e))
	assert.Equal(t, TypeProgress, e.Type)
	assert.Equal(t, "op", e.RequestID)
	var p job.Progress
	require.NoError(t, json.Unmarshal(e.Data, &p))
	assert.Equal(t, 2, p.CompletedLocations)

	require.NoError(t, json.Unmarshal([]byte(<-ch), &e))
	assert.Equal(t, TypeLog, e.Type)
}
