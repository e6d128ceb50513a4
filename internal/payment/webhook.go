package payment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stagehub-np/backend-stagehub/internal/common"
	"github.com/stagehub-np/backend-stagehub/internal/khalti"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Khalti-Signature"

const (
	replayKeyPrefix = "wh:khalti:"
	maxWebhookBytes = 1 << 20
)

// Verifier checks a webhook signature against the raw payload.
type Verifier interface {
	VerifySignature(payload []byte, signature string) bool
}

// Webhook receives gateway callbacks. Verification is fail-closed: any
// doubt about the signature rejects the delivery before the body is parsed.
type Webhook struct {
	Svc       *Service
	Verifier  Verifier
	Replay    *redis.Client
	ReplayTTL time.Duration
	Metrics   *Metrics
	Logger    zerolog.Logger
}

// Handle processes one webhook delivery. Replays of an already accepted body
// are rejected with 409 so the gateway stops resending; a delivery that fails
// after the replay mark is set releases the mark so the retry is not refused.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	result := "error"
	defer func() {
		if h.Metrics != nil {
			h.Metrics.WebhookTotal.WithLabelValues(result).Inc()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "could not read request body", nil)
		return
	}

	sig := strings.TrimSpace(r.Header.Get(SignatureHeader))
	if h.Verifier == nil || !h.Verifier.VerifySignature(body, sig) {
		result = "invalid_signature"
		h.Logger.Warn().Str("remote", common.ClientIP(r)).Msg("webhook_signature_rejected")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed", nil)
		return
	}

	var replayKey string
	if h.Replay != nil {
		replayKey = replayKeyPrefix + common.BodyDigest(body)
		ok, err := h.Replay.SetNX(r.Context(), replayKey, 1, h.replayTTL()).Result()
		if err != nil {
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "could not check delivery uniqueness", nil)
			return
		}
		if !ok {
			result = "replay"
			common.JSONError(w, http.StatusConflict, "REPLAY", "delivery already processed", nil)
			return
		}
	}

	var st khalti.PaymentStatus
	if err := json.Unmarshal(body, &st); err != nil || strings.TrimSpace(st.Pidx) == "" || st.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "INVALID_PAYLOAD", "webhook payload is not a valid status snapshot", nil)
		return
	}

	rec, err := h.Svc.GetByPidx(r.Context(), st.Pidx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", "no payment session for pidx", nil)
			return
		}
		h.releaseReplay(r.Context(), replayKey)
		common.JSONError(w, http.StatusInternalServerError, "STORE_ERROR", "could not load payment session", nil)
		return
	}
	if st.TotalAmount > 0 && st.TotalAmount != rec.Amount {
		result = "amount_mismatch"
		h.Logger.Warn().
			Str("pidx", st.Pidx).
			Int64("expected", rec.Amount).
			Int64("reported", st.TotalAmount).
			Msg("webhook_amount_mismatch")
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "reported amount does not match the session", nil)
		return
	}

	if _, err := h.Svc.applySnapshot(r.Context(), st, "webhook"); err != nil {
		h.releaseReplay(r.Context(), replayKey)
		common.JSONError(w, http.StatusInternalServerError, "RECONCILE_ERROR", "could not apply payment status", nil)
		return
	}

	result = "success"
	w.WriteHeader(http.StatusNoContent)
}

// releaseReplay drops the replay mark after a delivery that could not be
// applied, so the gateway's retry of the same body is accepted.
func (h *Webhook) releaseReplay(ctx context.Context, key string) {
	if h.Replay == nil || key == "" {
		return
	}
	if err := h.Replay.Del(ctx, key).Err(); err != nil {
		h.Logger.Warn().Err(err).Str("key", key).Msg("webhook_replay_release_failed")
	}
}

func (h *Webhook) replayTTL() time.Duration {
	if h.ReplayTTL > 0 {
		return h.ReplayTTL
	}
	return 24 * time.Hour
}
