package tasks_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
	"github.com/stagehub-np/backend-stagehub/internal/payment"
	"github.com/stagehub-np/backend-stagehub/internal/tasks"
)

type pollStore struct {
	rec payment.Record
}

func (s *pollStore) CreatePayment(_ context.Context, rec payment.Record) (payment.Record, error) {
	return rec, nil
}

func (s *pollStore) GetByPidx(_ context.Context, pidx string) (payment.Record, error) {
	if s.rec.Pidx != pidx {
		return payment.Record{}, payment.ErrNotFound
	}
	return s.rec, nil
}

func (s *pollStore) GetLatestByBooking(context.Context, uuid.UUID) (payment.Record, error) {
	return payment.Record{}, payment.ErrNotFound
}

func (s *pollStore) UpdateStatus(_ context.Context, pidx string, upd payment.StatusUpdate) (payment.Record, error) {
	if s.rec.Pidx != pidx {
		return payment.Record{}, payment.ErrNotFound
	}
	s.rec.Status = upd.Status
	return s.rec, nil
}

func (s *pollStore) InsertPaymentEvent(context.Context, string, string, any) error { return nil }

type pollGateway struct {
	status khalti.Status
	calls  int
}

func (g *pollGateway) InitiatePayment(context.Context, khalti.PaymentRequest) (khalti.PaymentResponse, error) {
	return khalti.PaymentResponse{}, nil
}

func (g *pollGateway) LookupPayment(_ context.Context, pidx string) (khalti.PaymentStatus, error) {
	g.calls++
	return khalti.PaymentStatus{Pidx: pidx, Status: g.status, TotalAmount: 1050}, nil
}

func newPollHandler(t *testing.T, status khalti.Status, maxAttempts int) (*tasks.PollHandler, *pollGateway, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	client := asynq.NewClientFromRedisClient(rdb)
	t.Cleanup(func() { _ = client.Close() })

	gw := &pollGateway{status: status}
	svc := &payment.Service{
		Store:   &pollStore{rec: payment.Record{Pidx: "p-poll", BookingID: uuid.New(), Amount: 1050, Status: khalti.StatusInitiated}},
		Gateway: gw,
		Logger:  zerolog.Nop(),
	}
	return &tasks.PollHandler{
		Svc:         svc,
		Scheduler:   tasks.Scheduler{Client: client},
		Interval:    time.Second,
		MaxAttempts: maxAttempts,
		Logger:      zerolog.Nop(),
	}, gw, mr
}

func TestPollStopsOnTerminalStatus(t *testing.T) {
	h, gw, mr := newPollHandler(t, khalti.StatusCompleted, 10)
	task, err := tasks.NewStatusPollTask("p-poll", 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if gw.calls != 1 {
		t.Fatalf("lookups = %d", gw.calls)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("terminal status still rescheduled: keys %v", mr.Keys())
	}
}

func TestPollReschedulesWhilePending(t *testing.T) {
	h, _, mr := newPollHandler(t, khalti.StatusPending, 10)
	task, err := tasks.NewStatusPollTask("p-poll", 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatal("pending status did not reschedule a poll")
	}
}

func TestPollGivesUpAfterBudget(t *testing.T) {
	h, _, mr := newPollHandler(t, khalti.StatusPending, 3)
	task, err := tasks.NewStatusPollTask("p-poll", 2)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("exhausted budget still rescheduled: keys %v", mr.Keys())
	}
}

func TestPollUnknownSessionStops(t *testing.T) {
	h, _, mr := newPollHandler(t, khalti.StatusPending, 10)
	task, err := tasks.NewStatusPollTask("p-ghost", 0)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := h.ProcessTask(context.Background(), task); err != nil {
		t.Fatalf("process: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatal("missing session rescheduled")
	}
}
