package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanOutAndDrop(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(1)
	b, cancelB := h.Subscribe(4)
	defer cancelB()

	h.Publish(Event{Kind: ProductAdded, ProductID: "p1"})
	h.Publish(Event{Kind: ProductRemoved, ProductID: "p1"})

	got := <-a
	assert.Equal(t, ProductAdded, got.Kind)
	assert.False(t, got.At.IsZero())
	select {
	case e := <-a:
		t.Fatalf("unexpected event %v", e)
	default:
	}

	require.Len(t, b, 2)
	cancelA()
	cancelA()
	_, open := <-a
	assert.False(t, open)

	var nilHub *Hub
	nilHub.Publish(Event{Kind: SyncPulse})
}
