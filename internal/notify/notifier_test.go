package notify

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
	bodies []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	a := &fakeSender{name: "a"}
	b := &fakeSender{name: "b"}
	n := New([]Sender{a, b}, nil, discardLogger())

	err := n.Notify(context.Background(), EventArbDetected, "LONG edge 0.85")
	require.NoError(t, err)

	require.Len(t, a.titles, 1)
	assert.Equal(t, "Arbitrage detected", a.titles[0])
	assert.Equal(t, "LONG edge 0.85", a.bodies[0])
	assert.Len(t, b.titles, 1)
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &fakeSender{name: "s"}
	n := New([]Sender{s}, []string{EventArbExecuted}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventArbDetected, "filtered"))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), EventArbExecuted, "delivered"))
	assert.Len(t, s.titles, 1)
}

func TestNotifyUnknownEventUsesRawTitle(t *testing.T) {
	s := &fakeSender{name: "s"}
	n := New([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "custom_event", "body"))
	require.Len(t, s.titles, 1)
	assert.Equal(t, "custom_event", s.titles[0])
}

func TestNotifyCollectsSenderErrors(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("webhook 500")}
	good := &fakeSender{name: "good"}
	n := New([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventSettlementFailed, "split reverted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: webhook 500")
	// The failing sender does not block the healthy one.
	assert.Len(t, good.titles, 1)
}

func TestNotifyNoSenders(t *testing.T) {
	n := New(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), EventError, "boom"))
}
