package events

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	// Create a minimal logger that discards output
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("observe with no subscribers", func(t *testing.T) {
		bus := NewBus(logger)
		bus.Observe(NewEvent(KindJobCompleted, uuid.New(), "render", 1))
		assert.Zero(t, bus.Dropped())
	})

	t.Run("every subscriber receives the event", func(t *testing.T) {
		bus := NewBus(logger)
		sub1 := bus.Subscribe(4)
		sub2 := bus.Subscribe(4)

		event := NewEvent(KindJobFailed, uuid.New(), "render", 3)
		bus.Observe(event)

		assert.Equal(t, event, <-sub1.C())
		assert.Equal(t, event, <-sub2.C())
	})

	t.Run("full subscriber drops without blocking", func(t *testing.T) {
		bus := NewBus(logger)
		sub := bus.Subscribe(1)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < 3; i++ {
				bus.Observe(NewEvent(KindJobCompleted, uuid.New(), "render", 1))
			}
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Observe blocked on a full subscriber")
		}
		assert.Equal(t, int64(2), bus.Dropped())
		assert.Len(t, sub.C(), 1)
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		bus := NewBus(logger)
		sub := bus.Subscribe(1)
		bus.Unsubscribe(sub)

		_, ok := <-sub.C()
		assert.False(t, ok)

		bus.Observe(NewEvent(KindJobCompleted, uuid.New(), "render", 1))
		assert.Zero(t, bus.Dropped())
	})

	t.Run("subscribe after close returns closed subscription", func(t *testing.T) {
		bus := NewBus(logger)
		bus.Close()
		sub := bus.Subscribe(1)

		_, ok := <-sub.C()
		assert.False(t, ok)
	})
}

func TestFanout(t *testing.T) {
	var got []Kind
	first := ObserverFunc(func(e Event) { got = append(got, e.Kind) })
	second := ObserverFunc(func(e Event) { got = append(got, e.Kind+"_2") })

	Fanout(first, nil, second).Observe(NewEvent(KindJobRetrying, uuid.New(), "tts", 1))

	assert.Equal(t, []Kind{KindJobRetrying, KindJobRetrying + "_2"}, got)
}

func TestLogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	observer := NewLogObserver(logger)

	event := NewEvent(KindJobFailed, uuid.New(), "tts", 4)
	event.Err = errors.New("voice service unavailable")
	observer.Observe(event)

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, `"msg":"job failed"`)
	assert.Contains(t, out, event.JobID.String())
	assert.Contains(t, out, "voice service unavailable")
}
