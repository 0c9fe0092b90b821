package eventbus

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tinfoilsh/tinfoil-chat-sub006/internal/logging"
)

func newTestBus() *Bus {
	return New(logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestBus_DeliversInRegistrationOrder(t *testing.T) {
	b := newTestBus()

	var order []string
	b.On(EventIDChange, func(Event) { order = append(order, "first") })
	b.On(EventIDChange, func(Event) { order = append(order, "second") })

	b.Emit(IDChange{From: "a", To: "b"})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_DeliversOnlyMatchingType(t *testing.T) {
	b := newTestBus()

	var got []Event
	b.On(EventChatDeleted, func(e Event) { got = append(got, e) })

	b.Emit(IDChange{From: "a", To: "b"})
	b.Emit(ChatDeleted{ChatID: "x"})

	assert.Len(t, got, 1)
	assert.Equal(t, ChatDeleted{ChatID: "x"}, got[0])
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	b := newTestBus()

	var delivered bool
	b.On(EventReloadRequired, func(Event) { panic("boom") })
	b.On(EventReloadRequired, func(Event) { delivered = true })

	assert.NotPanics(t, func() { b.Emit(ReloadRequired{}) })
	assert.True(t, delivered)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := newTestBus()

	var count int
	unsub := b.On(EventIDChange, func(Event) { count++ })

	b.Emit(IDChange{From: "a", To: "b"})
	unsub()
	b.Emit(IDChange{From: "b", To: "c"})

	assert.Equal(t, 1, count)

	// Unsubscribing twice is harmless.
	assert.NotPanics(t, unsub)
}

func TestBus_Clear(t *testing.T) {
	b := newTestBus()

	var count int
	b.On(EventIDChange, func(Event) { count++ })
	b.On(EventChatDeleted, func(Event) { count++ })

	b.Clear()
	b.Emit(IDChange{From: "a", To: "b"})
	b.Emit(ChatDeleted{ChatID: "x"})

	assert.Equal(t, 0, count)
}

func TestBus_IDChangeMigratesInMemoryReference(t *testing.T) {
	b := newTestBus()

	// A subscriber holding a reference to the old ID follows the rename
	// without losing its uncommitted state.
	open := struct {
		ID          string
		PendingSave string
	}{ID: "temp-id", PendingSave: "draft text"}

	b.On(EventIDChange, func(e Event) {
		change := e.(IDChange)
		if open.ID == change.From {
			open.ID = change.To
		}
	})

	b.Emit(IDChange{From: "temp-id", To: "server-id"})

	assert.Equal(t, "server-id", open.ID)
	assert.Equal(t, "draft text", open.PendingSave)
}
