package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/marketsim/internal/domain"
)

func TestHub_BroadcastAndUnsubscribe(t *testing.T) {
	h := NewHub()
	a := h.Subscribe(2)
	b := h.Subscribe(2)
	require.Equal(t, 2, h.Len())

	msg := &domain.ResetMessage{Time: baseTime}
	h.Broadcast(msg)
	assert.Same(t, msg, <-a.C)
	assert.Same(t, msg, <-b.C)

	h.Unsubscribe(a)
	h.Unsubscribe(a)
	_, open := <-a.C
	assert.False(t, open)
	assert.Equal(t, 1, h.Len())
}

func TestHub_SlowSubscriberDropsMessages(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)

	h.Broadcast(&domain.ResetMessage{Time: baseTime})
	h.Broadcast(&domain.ResetMessage{Time: baseTime.Add(1)})

	first := <-sub.C
	assert.Equal(t, baseTime, first.MessageTime())
	select {
	case m := <-sub.C:
		t.Fatalf("unexpected buffered message %v", m)
	default:
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub()
	sub := h.Subscribe(1)
	h.Close()

	_, open := <-sub.C
	assert.False(t, open)

	late := h.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)
	h.Unsubscribe(late)
	assert.Equal(t, 0, h.Len())
}

func TestJournal_Read(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe(8)
	j := NewJournal(hub)
	for i := 0; i < 5; i++ {
		j.Append(&domain.ResetMessage{Time: baseTime.Add(1)})
	}

	assert.Equal(t, 5, j.Len())
	assert.Len(t, j.Read(0, 0), 5)
	assert.Len(t, j.Read(3, 10), 2)
	assert.Len(t, j.Read(1, 2), 2)
	assert.Empty(t, j.Read(5, 1))
	assert.Len(t, j.Read(-3, 1), 1)
	assert.Len(t, sub.C, 5)
}
