package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/stagehub-np/backend-stagehub/internal/events"
)

type memStore struct {
	inserted []events.Event
	err      error
}

func (s *memStore) InsertEvent(_ context.Context, event events.Event) (events.Event, error) {
	if s.err != nil {
		return events.Event{}, s.err
	}
	s.inserted = append(s.inserted, event)
	return event, nil
}

type recordingNotifier struct {
	events []events.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, event events.Event) error {
	n.events = append(n.events, event)
	return n.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &memStore{}
	notifier := &recordingNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{notifier}}

	aggregate := uuid.New()
	ev, err := bus.Emit(context.Background(), events.TopicPaymentCompleted, aggregate, map[string]string{"pidx": "p-1"})
	require.NoError(t, err)
	require.Equal(t, events.TopicPaymentCompleted, ev.Topic)
	require.Equal(t, aggregate, ev.AggregateID)
	require.JSONEq(t, `{"pidx":"p-1"}`, string(ev.Payload))
	require.Len(t, store.inserted, 1)
	require.Len(t, notifier.events, 1)
}

func TestEmitNilPayloadBecomesEmptyObject(t *testing.T) {
	store := &memStore{}
	bus := &events.Bus{Store: store}

	ev, err := bus.Emit(context.Background(), events.TopicBookingConfirmed, uuid.New(), nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(ev.Payload))
}

func TestEmitRejectsInvalidInput(t *testing.T) {
	bus := &events.Bus{Store: &memStore{}}

	_, err := bus.Emit(context.Background(), "", uuid.New(), nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicPaymentFailed, uuid.Nil, nil)
	require.Error(t, err)

	_, err = bus.Emit(context.Background(), events.TopicPaymentFailed, uuid.New(), json.RawMessage(`{"broken`))
	require.Error(t, err)
}

func TestEmitNotifierFailureStillReturnsEvent(t *testing.T) {
	store := &memStore{}
	failing := &recordingNotifier{err: errors.New("smtp down")}
	ok := &recordingNotifier{}
	bus := &events.Bus{Store: store, Notifiers: []events.Notifier{failing, ok}}

	ev, err := bus.Emit(context.Background(), events.TopicPaymentExpired, uuid.New(), nil)
	require.Error(t, err)
	require.NotEqual(t, uuid.Nil, ev.ID)
	require.Len(t, store.inserted, 1)
	require.Len(t, ok.events, 1, "remaining notifiers still run after one fails")
}

func TestEmitStoreFailure(t *testing.T) {
	bus := &events.Bus{Store: &memStore{err: errors.New("db down")}}
	_, err := bus.Emit(context.Background(), events.TopicPaymentInitiated, uuid.New(), nil)
	require.Error(t, err)
}
