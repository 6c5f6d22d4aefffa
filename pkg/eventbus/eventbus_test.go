package eventbus

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestBus(buf *bytes.Buffer) EventBus {
	log := logrus.New()
	log.SetOutput(buf)
	log.SetLevel(logrus.WarnLevel)
	return NewEventPublisher(log)
}

func TestPublish_NoSubscribers(t *testing.T) {
	var buf bytes.Buffer
	bus := newTestBus(&buf)
	bus.Subscribe("payroll.run.finalized", func(context.Context, Event) error {
		t.Error("should not be called")
		return nil
	})

	err := bus.Publish(context.Background(), Event{Topic: "payroll.liabilities.built"})
	require.ErrorIs(t, err, ErrNoSubscribers)
	require.Contains(t, buf.String(), "no matching subscribers")
}

func TestPublish_TopicAndWildcard(t *testing.T) {
	var buf bytes.Buffer
	bus := newTestBus(&buf)
	var topicCalls, wildcardCalls int
	bus.Subscribe("payroll.run.reversed", func(context.Context, Event) error {
		topicCalls++
		return nil
	})
	bus.Subscribe(AllTopics, func(context.Context, Event) error {
		wildcardCalls++
		return nil
	})

	require.NoError(t, bus.Publish(context.Background(), Event{Topic: "payroll.run.reversed"}))
	require.NoError(t, bus.Publish(context.Background(), Event{Topic: "payroll.settlement.applied"}))
	require.Equal(t, 1, topicCalls)
	require.Equal(t, 2, wildcardCalls)
	require.Equal(t, 2, bus.SubscribersCount())

	bus.Clear()
	require.Equal(t, 0, bus.SubscribersCount())
}

func TestPublish_JoinsErrorsAndRecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	bus := newTestBus(&buf)
	boom := errors.New("boom")
	bus.Subscribe("t", func(context.Context, Event) error { return boom })
	bus.Subscribe("t", func(context.Context, Event) error { panic("kaboom") })

	err := bus.Publish(context.Background(), Event{Topic: "t"})
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "panicked")
}
