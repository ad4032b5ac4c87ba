package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
)

type fakeChannel struct {
	published []amqp.Publishing
	keys      []string
	fail      bool
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	if f.fail {
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestEventAttrs(t *testing.T) {
	ev := Event(domain.EventLogin, "acct-1", "method", "pwd", "dangling")
	require.Equal(t, "user.login", ev.Name)
	require.Equal(t, "acct-1", ev.AccountID)
	require.Equal(t, map[string]string{"method": "pwd"}, ev.Attrs)
	require.False(t, ev.At.IsZero())

	require.Nil(t, Event(domain.EventLogout, "acct-1").Attrs)
}

func TestMultiAndRecorder(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	m := Multi{a, nil, b, LogEmitter{}}

	m.Emit(context.Background(), Event(domain.EventBanned, "x"))
	m.Emit(context.Background(), Event(domain.EventLockedOut, "y"))

	require.Equal(t, []string{"user.banned", "user.locked_out"}, a.Names())
	require.Equal(t, a.Names(), b.Names())
	require.Len(t, a.Events(), 2)
}

func TestAMQPEmitterPublishesJSON(t *testing.T) {
	ch := &fakeChannel{}
	dials := 0
	e := NewAMQPEmitter("amqp://unused", "")
	e.dial = func(_, queue string) (channel, func() error, error) {
		dials++
		require.Equal(t, DefaultQueue, queue)
		return ch, func() error { return nil }, nil
	}

	e.Emit(context.Background(), Event(domain.EventPasswordChanged, "acct-1"))
	e.Emit(context.Background(), Event(domain.EventLogout, "acct-1"))

	require.Equal(t, 1, dials)
	require.Len(t, ch.published, 2)
	require.Equal(t, []string{DefaultQueue, DefaultQueue}, ch.keys)
	require.Equal(t, uint8(amqp.Persistent), ch.published[0].DeliveryMode)
	require.Equal(t, "application/json", ch.published[0].ContentType)

	var got domain.AuditEvent
	require.NoError(t, json.Unmarshal(ch.published[0].Body, &got))
	require.Equal(t, "user.password_changed", got.Name)
	require.Equal(t, "acct-1", got.AccountID)

	require.NoError(t, e.Close())
	require.True(t, ch.closed)
}

func TestAMQPEmitterRedialsAfterFailure(t *testing.T) {
	broken := &fakeChannel{fail: true}
	healthy := &fakeChannel{}
	chans := []*fakeChannel{broken, healthy}
	e := NewAMQPEmitter("amqp://unused", "q")
	e.dial = func(string, string) (channel, func() error, error) {
		ch := chans[0]
		chans = chans[1:]
		return ch, nil, nil
	}

	e.Emit(context.Background(), Event(domain.EventLogin, "a"))
	require.True(t, broken.closed)

	e.Emit(context.Background(), Event(domain.EventLogin, "a"))
	require.Len(t, healthy.published, 1)
}

func TestAMQPEmitterDialErrorIsSwallowed(t *testing.T) {
	e := NewAMQPEmitter("amqp://unused", "q")
	e.dial = func(string, string) (channel, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}
	require.NotPanics(t, func() {
		e.Emit(context.Background(), Event(domain.EventLogin, "a"))
	})
	require.NoError(t, e.Close())
}
