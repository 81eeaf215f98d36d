package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_RegistrationOrder(t *testing.T) {
	bus := New[int]()
	var got []string

	bus.On("tick", func(v int) { got = append(got, "a") })
	bus.On("tick", func(v int) { got = append(got, "b") })
	bus.On("other", func(v int) { got = append(got, "x") })
	bus.On("tick", func(v int) { got = append(got, "c") })

	bus.Emit("tick", 1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_Remove(t *testing.T) {
	bus := New[string]()
	var got []string

	first := bus.On("e", func(v string) { got = append(got, "first:"+v) })
	bus.On("e", func(v string) { got = append(got, "second:"+v) })

	bus.Emit("e", "1")
	first.Remove()
	first.Remove()
	bus.Emit("e", "2")

	assert.Equal(t, []string{"first:1", "second:1", "second:2"}, got)
}

func TestBus_RemoveDuringEmit(t *testing.T) {
	bus := New[int]()
	calls := 0

	var sub *Subscription
	sub = bus.On("e", func(int) {
		calls++
		sub.Remove()
	})
	bus.On("e", func(int) { calls++ })

	bus.Emit("e", 0)
	assert.Equal(t, 2, calls, "removal applies from the next emit")

	bus.Emit("e", 0)
	assert.Equal(t, 3, calls)
}

func TestBus_NoListeners(t *testing.T) {
	bus := New[int]()
	assert.False(t, bus.HasListeners("e"))
	bus.Emit("e", 1)

	sub := bus.On("e", func(int) {})
	assert.True(t, bus.HasListeners("e"))
	sub.Remove()
	assert.False(t, bus.HasListeners("e"))
}
