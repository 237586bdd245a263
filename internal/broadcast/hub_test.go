package broadcast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antinozorionktr/Ollama-OS-OCR/internal/entity"
)

func recv(t *testing.T, ch <-chan entity.ProgressEvent) entity.ProgressEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		require.True(t, ok, "channel closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return entity.ProgressEvent{}
	}
}

func TestSubscribeAckFirst(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	_, ch := h.Subscribe()
	ev := recv(t, ch)
	assert.Equal(t, entity.EventConnected, ev.Type)
}

func TestPublishFanOut(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	_, a := h.Subscribe()
	_, b := h.Subscribe()
	recv(t, a)
	recv(t, b)

	h.Publish(entity.ProgressEvent{Type: entity.EventUpdate, JobID: "j1", ProgressPct: 40})

	for _, ch := range []<-chan entity.ProgressEvent{a, b} {
		ev := recv(t, ch)
		assert.Equal(t, "j1", ev.JobID)
		assert.Equal(t, 40, ev.ProgressPct)
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	id, ch := h.Subscribe()
	_ = id
	recv(t, ch)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// overflow the buffer without draining
		for i := 0; i < subscriberBuffer*3; i++ {
			h.Publish(entity.ProgressEvent{Type: entity.EventUpdate, ProgressPct: i})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Greater(t, h.Dropped(), uint64(0))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := NewHub(nil)
	defer h.Close()

	id, ch := h.Subscribe()
	recv(t, ch)

	h.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, h.Subscribers())

	// double unsubscribe is a no-op
	h.Unsubscribe(id)
}

func TestCloseShutsEverythingDown(t *testing.T) {
	h := NewHub(nil)
	_, ch := h.Subscribe()
	recv(t, ch)

	h.Close()
	_, ok := <-ch
	assert.False(t, ok)

	// post-close operations must not panic
	h.Publish(entity.ProgressEvent{Type: entity.EventUpdate})
	_, ch2 := h.Subscribe()
	_, ok = <-ch2
	assert.False(t, ok)
}
