package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/khalti"
	"github.com/stagehub-np/backend-stagehub/internal/payment"
)

// TypePaymentStatusPoll polls a payment session until it reaches a terminal
// status or the attempt budget runs out.
const TypePaymentStatusPoll = "payment:poll_status"

// PollPayload is the task body for a status poll.
type PollPayload struct {
	Pidx    string `json:"pidx"`
	Attempt int    `json:"attempt"`
}

// NewStatusPollTask builds a poll task. Rescheduling is handled by the poll
// handler itself, so asynq-level retries are disabled.
func NewStatusPollTask(pidx string, attempt int) (*asynq.Task, error) {
	payload, err := json.Marshal(PollPayload{Pidx: pidx, Attempt: attempt})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypePaymentStatusPoll, payload, asynq.MaxRetry(0)), nil
}

// Scheduler enqueues poll tasks. It satisfies the payment service's Poller.
type Scheduler struct {
	Client *asynq.Client
}

func (s Scheduler) SchedulePoll(ctx context.Context, pidx string, delay time.Duration) error {
	return s.schedule(ctx, pidx, 0, delay)
}

func (s Scheduler) schedule(ctx context.Context, pidx string, attempt int, delay time.Duration) error {
	if s.Client == nil {
		return errors.New("tasks: asynq client not configured")
	}
	task, err := NewStatusPollTask(pidx, attempt)
	if err != nil {
		return err
	}
	_, err = s.Client.EnqueueContext(ctx, task, asynq.ProcessIn(delay))
	return err
}

// PollHandler refreshes a session's status and keeps polling while it stays
// non-terminal. The webhook usually wins this race; the poller is the net
// under lost deliveries.
type PollHandler struct {
	Svc         *payment.Service
	Scheduler   Scheduler
	Interval    time.Duration
	MaxAttempts int
	Logger      zerolog.Logger
}

func (h *PollHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p PollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("tasks: decode poll payload: %w", err)
	}

	rec, err := h.Svc.RefreshStatus(ctx, p.Pidx)
	if err != nil {
		// Vanished records stop the loop; transient lookup failures burn an
		// attempt and try again on the normal cadence.
		if errors.Is(err, payment.ErrNotFound) {
			h.Logger.Warn().Str("pidx", p.Pidx).Msg("poll_session_missing")
			return nil
		}
		var lookupErr *khalti.LookupError
		if !errors.As(err, &lookupErr) && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		h.Logger.Warn().Err(err).Str("pidx", p.Pidx).Int("attempt", p.Attempt).Msg("poll_lookup_failed")
		return h.reschedule(ctx, p)
	}

	if rec.Status.Terminal() {
		h.Logger.Info().
			Str("pidx", p.Pidx).
			Str("status", string(rec.Status)).
			Int("attempt", p.Attempt).
			Msg("poll_complete")
		return nil
	}
	return h.reschedule(ctx, p)
}

func (h *PollHandler) reschedule(ctx context.Context, p PollPayload) error {
	next := p.Attempt + 1
	if h.MaxAttempts > 0 && next >= h.MaxAttempts {
		h.Logger.Warn().Str("pidx", p.Pidx).Int("attempts", next).Msg("poll_budget_exhausted")
		return nil
	}
	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return h.Scheduler.schedule(ctx, p.Pidx, next, interval)
}

// Mux returns the handler registry for the worker process.
func (h *PollHandler) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TypePaymentStatusPoll, h)
	return mux
}
