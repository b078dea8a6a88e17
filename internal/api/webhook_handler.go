package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/shaiso/Dialer/internal/telemetry"
	"github.com/shaiso/Dialer/internal/webhook"
)

// ProviderStatusWebhook принимает status callback провайдера (JSON или form).
// POST /webhooks/provider/status
func (h *Handler) ProviderStatusWebhook(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, webhook.KindProviderStatus, okAck, providerStatusBody)
}

// SessionStartWebhook принимает начало сессии голосового бота.
// POST /webhooks/session/start
func (h *Handler) SessionStartWebhook(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, webhook.KindSessionStart, sessionStartAck, jsonBody)
}

// SessionEndWebhook принимает конец сессии голосового бота.
// POST /webhooks/session/end
func (h *Handler) SessionEndWebhook(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, webhook.KindSessionEnd, sessionAck, jsonBody)
}

// TranscriptWebhook принимает события транскрипта.
// POST /webhooks/transcript
func (h *Handler) TranscriptWebhook(w http.ResponseWriter, r *http.Request) {
	h.acknowledge(w, r, webhook.KindTranscriptEvents, sessionAck, jsonBody)
}

// acknowledge читает тело, отдаёт событие в Sink и всегда отвечает
// фиксированным подтверждением со статусом 200.
//
// Битое тело, ошибка Sink и даже паника только логируются и считаются
// в dialer_webhook_events_total{outcome="dropped"}: отправитель не должен
// видеть внутренних ошибок.
func (h *Handler) acknowledge(
	w http.ResponseWriter,
	r *http.Request,
	kind webhook.Kind,
	ack any,
	read func(*http.Request) ([]byte, error),
) {
	defer JSON(w, http.StatusOK, ack)
	defer func() {
		if p := recover(); p != nil {
			h.dropWebhook(kind, fmt.Errorf("panic: %v", p))
		}
	}()

	body, err := read(r)
	if err != nil {
		h.dropWebhook(kind, err)
		return
	}
	if err := h.webhooks.Submit(r.Context(), webhook.NewEvent(kind, body)); err != nil {
		h.dropWebhook(kind, err)
	}
}

func (h *Handler) dropWebhook(kind webhook.Kind, err error) {
	telemetry.WebhookEvents.WithLabelValues(string(kind), telemetry.OutcomeDropped).Inc()
	h.logger.Warn("webhook dropped", "kind", kind, "error", err)
}

// jsonBody читает JSON тело webhook'а как есть.
func jsonBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, webhook.ErrMalformed
	}
	return body, nil
}

// providerStatusBody приводит callback провайдера к JSON.
// Exotel шлёт form-encoded тело, но может прислать и JSON.
func providerStatusBody(r *http.Request) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return jsonBody(r)
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	return json.Marshal(webhook.ProviderStatusFromForm(r.PostForm))
}
