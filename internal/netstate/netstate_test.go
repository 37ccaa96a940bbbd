package netstate

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestEdgesOnly(t *testing.T) {
	m := New(zerolog.Nop(), nil, 0)
	var edges []bool
	unsub := m.Subscribe(func(online bool) { edges = append(edges, online) })

	m.SetOnline(true)
	m.SetOnline(true)
	m.SetOnline(false)
	m.SetOnline(true)
	assert.Equal(t, []bool{true, false, true}, edges)

	unsub()
	m.SetOnline(false)
	assert.Len(t, edges, 3)
	assert.False(t, m.Online())
}

func TestCheckUsesProbe(t *testing.T) {
	fail := true
	m := New(zerolog.Nop(), func(context.Context) error {
		if fail {
			return errors.New("dial tcp: refused")
		}
		return nil
	}, 0)

	assert.False(t, m.Check(context.Background()))
	fail = false
	assert.True(t, m.Check(context.Background()))
	assert.True(t, m.Online())
}
