package eventbus_test

import (
	"testing"

	"github.com/coreledger/chaincore/eventbus"
	"github.com/stretchr/testify/require"
)

func TestBusPublishesToAllSubscribers(t *testing.T) {
	bus := eventbus.New[int]()
	var a, b int

	bus.Subscribe(func(event int) { a += event })
	bus.Subscribe(func(event int) { b += event * 2 })

	bus.Publish(3)

	require.Equal(t, 3, a)
	require.Equal(t, 6, b)
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := eventbus.New[string]()
	var received []string

	sub := bus.Subscribe(func(event string) { received = append(received, event) })
	bus.Publish("first")
	bus.Unsubscribe(sub)
	bus.Publish("second")

	require.Equal(t, []string{"first"}, received)
}
