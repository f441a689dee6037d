package telephony

import (
	"context"
	"net/http"
	"strconv"

	"callrep/internal/apperr"
	"callrep/internal/metrics"
	"callrep/pkg/logger"

	"github.com/gin-gonic/gin"
)

// FlowRenderer produces TwiML for voice-flow callbacks. It never fails:
// every outcome, including a missing session, is a playable document.
type FlowRenderer interface {
	RenderStep(ctx context.Context, callID string, step int) string
	RenderMenuInput(ctx context.Context, callID string, step int, digit string) string
}

// EventReconciler folds provider callbacks into call state.
type EventReconciler interface {
	ApplyStatusEvent(ctx context.Context, ev StatusEvent) error
	ApplyRecordingEvent(ctx context.Context, ev RecordingEvent) error
	ApplyTranscriptEvent(ctx context.Context, ev TranscriptEvent) error
}

// WebhookHandler converts Twilio callbacks to internal events and writes responses.
//
// No call state logic here.
type WebhookHandler struct {
	Flow    FlowRenderer
	Events  EventReconciler
	Metrics *metrics.Metrics
}

// Voice serves POST /voice/:callId?step=N&digit=D.
// The response is always 200 with a TwiML body so the call leg ends cleanly on failure.
func (h WebhookHandler) Voice(c *gin.Context) {
	callID := c.Param("callId")
	step := parseStep(c.Query("step"))
	digit := c.Query("digit")

	var twiml string
	if digit != "" {
		twiml = h.Flow.RenderMenuInput(c.Request.Context(), callID, step, digit)
	} else {
		twiml = h.Flow.RenderStep(c.Request.Context(), callID, step)
	}
	c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(twiml))
}

func (h WebhookHandler) Status(c *gin.Context) {
	ev, err := ParseStatusCallback(c.Request, c.Param("callId"))
	if err != nil {
		h.acknowledge(c, "status", apperr.Validation("invalid form"))
		return
	}
	h.acknowledge(c, "status", h.Events.ApplyStatusEvent(c.Request.Context(), ev))
}

func (h WebhookHandler) Recording(c *gin.Context) {
	ev, err := ParseRecordingCallback(c.Request, c.Param("callId"))
	if err != nil {
		h.acknowledge(c, "recording", apperr.Validation("invalid form"))
		return
	}
	h.acknowledge(c, "recording", h.Events.ApplyRecordingEvent(c.Request.Context(), ev))
}

func (h WebhookHandler) Transcription(c *gin.Context) {
	ev, err := ParseTranscriptionCallback(c.Request, c.Param("callId"))
	if err != nil {
		h.acknowledge(c, "transcription", apperr.Validation("invalid form"))
		return
	}
	h.acknowledge(c, "transcription", h.Events.ApplyTranscriptEvent(c.Request.Context(), ev))
}

// acknowledge answers 200 for anything the provider cannot fix by retrying
// and 500 only for internal failures.
func (h WebhookHandler) acknowledge(c *gin.Context, kind string, err error) {
	log := logger.FromGin(c)
	callID := c.Param("callId")

	if err == nil {
		h.Metrics.Webhook(kind, "applied")
		c.String(http.StatusOK, "OK")
		return
	}

	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		log.Warn("webhook for unknown call", "kind", kind, "call_id", callID)
		h.Metrics.Webhook(kind, "not_found")
		c.String(http.StatusOK, "OK")
	case apperr.KindValidation:
		log.Warn("webhook rejected", "kind", kind, "call_id", callID, "err", err)
		h.Metrics.Webhook(kind, "invalid")
		c.String(http.StatusOK, "OK")
	default:
		log.Error("webhook processing failed", "kind", kind, "call_id", callID, "err", err)
		h.Metrics.Webhook(kind, "error")
		_ = c.Error(err)
		c.String(http.StatusInternalServerError, "error")
	}
}

// parseStep treats a missing or malformed step as the first step.
func parseStep(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
