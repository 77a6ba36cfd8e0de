package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPublishInSubscriptionOrder(t *testing.T) {
	topic := NewTopic[int]("numbers")
	var got []string
	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })

	n := topic.Publish(1)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestUnsubscribe(t *testing.T) {
	topic := NewTopic[int]("numbers")
	calls := 0
	sub := topic.Subscribe(func(int) { calls++ })
	other := topic.Subscribe(func(int) {})
	require.Equal(t, 2, topic.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	topic.Publish(1)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, topic.Len())
	other.Unsubscribe()
	assert.Equal(t, 0, topic.Len())
}

func TestPanickingHandlerIsIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	topic := NewTopic[string]("errors", WithLogger[string](zap.New(core)))

	var after []string
	topic.Subscribe(func(string) { panic("boom") })
	topic.Subscribe(func(s string) { after = append(after, s) })

	n := topic.Publish("x")
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"x"}, after)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "event handler panicked", logs.All()[0].Message)
}

func TestCopierGivesEachSubscriberOwnPayload(t *testing.T) {
	topic := NewTopic[[]int]("batches", WithCopier(func(in []int) []int {
		return append([]int(nil), in...)
	}))

	var second []int
	topic.Subscribe(func(b []int) { b[0] = 100 })
	topic.Subscribe(func(b []int) { second = b })

	src := []int{1, 2}
	topic.Publish(src)
	assert.Equal(t, []int{1, 2}, second)
	assert.Equal(t, []int{1, 2}, src)
}

func TestNilHandlerIgnored(t *testing.T) {
	topic := NewTopic[int]("numbers")
	sub := topic.Subscribe(nil)
	assert.Equal(t, 0, topic.Len())
	assert.NotPanics(t, sub.Unsubscribe)
}

func TestHandlerMaySubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[int]("numbers")
	topic.Subscribe(func(int) { topic.Subscribe(func(int) {}) })

	assert.Equal(t, 1, topic.Publish(1))
	assert.Equal(t, 2, topic.Len())
}
