package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Dialer/internal/callstate"
	"github.com/shaiso/Dialer/internal/domain"
	"github.com/shaiso/Dialer/internal/repo"
	"github.com/shaiso/Dialer/internal/telemetry"
)

// maxCASAttempts — сколько раз перечитываем звонок при конкурентной смене статуса.
const maxCASAttempts = 3

// CallStore — операции со звонками, нужные Reconciler'у.
type CallStore interface {
	GetByID(ctx context.Context, id int64) (*domain.CallJob, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (*domain.CallJob, error)
	Transition(ctx context.Context, id int64, from, to domain.CallStatus, upd repo.StatusUpdate) error
	SetConversationID(ctx context.Context, id int64, conversationID string) error
	MergeSessionInsights(ctx context.Context, conversationID string, in repo.SessionInsights) (int64, error)
	SaveSessionEnd(ctx context.Context, id int64, duration int, transcript string) error
}

// Reconciler применяет webhook события к звонкам.
type Reconciler struct {
	calls  CallStore
	logger *slog.Logger
}

// NewReconciler создаёт новый Reconciler.
func NewReconciler(calls CallStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		calls:  calls,
		logger: telemetry.OrDefault(logger).With("component", "reconciler"),
	}
}

// Apply разбирает событие и применяет его.
func (r *Reconciler) Apply(ctx context.Context, ev Event) (res Result, err error) {
	defer func() {
		outcome := string(res)
		if err != nil {
			outcome = telemetry.OutcomeError
		}
		telemetry.WebhookEvents.WithLabelValues(string(ev.Kind), outcome).Inc()
	}()

	switch ev.Kind {
	case KindProviderStatus:
		p, err := decode[ProviderStatusPayload](ev.Payload)
		if err != nil {
			return "", err
		}
		return r.ProviderStatus(ctx, p)

	case KindSessionStart:
		p, err := decode[SessionStartPayload](ev.Payload)
		if err != nil {
			return "", err
		}
		return r.SessionStart(ctx, p)

	case KindSessionEnd:
		p, err := decode[SessionEndPayload](ev.Payload)
		if err != nil {
			return "", err
		}
		return r.SessionEnd(ctx, p)

	case KindTranscriptEvents:
		p, err := decode[TranscriptEventsPayload](ev.Payload)
		if err != nil {
			return "", err
		}
		return r.TranscriptEvents(ctx, p)

	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}
}

// Submit применяет событие сразу (inline-режим).
func (r *Reconciler) Submit(ctx context.Context, ev Event) error {
	res, err := r.Apply(ctx, ev)
	if err != nil {
		return err
	}
	r.logger.Debug("webhook applied", "kind", ev.Kind, "result", res)
	return nil
}

// ProviderStatus применяет финальный статус от провайдера.
// Неизвестный статус провайдера и неизвестный CallSid — no-op.
func (r *Reconciler) ProviderStatus(ctx context.Context, p ProviderStatusPayload) (Result, error) {
	if p.CallSid == "" {
		return ResultIgnored, nil
	}
	status, ok := callstate.FromProviderPush(p.Status)
	if !ok {
		r.logger.Debug("unmapped provider status", "call_sid", p.CallSid, "status", p.Status)
		return ResultIgnored, nil
	}

	call, res, err := r.lookup(ctx, p.CallSid)
	if call == nil {
		return res, err
	}

	return r.advance(ctx, call, callstate.ProviderResult(status), repo.StatusUpdate{
		RecordingURL: p.RecordingURL,
		Duration:     p.Seconds(),
	})
}

// SessionStart отмечает подключение бота и сливает данные прошлых сессий.
func (r *Reconciler) SessionStart(ctx context.Context, p SessionStartPayload) (Result, error) {
	res := ResultIgnored

	if p.ExternalID != "" {
		call, lres, err := r.lookup(ctx, p.ExternalID)
		if err != nil {
			return "", err
		}
		res = lres
		if call != nil {
			if p.ConversationID != "" {
				if err := r.calls.SetConversationID(ctx, call.ID, p.ConversationID); err != nil {
					return "", err
				}
			}
			if res, err = r.advance(ctx, call, callstate.BotConnected(), repo.StatusUpdate{}); err != nil {
				return "", err
			}
		}
	}

	for _, s := range p.PreviousSessions.Sessions {
		if s.ConversationID == "" {
			continue
		}
		n, err := r.calls.MergeSessionInsights(ctx, s.ConversationID, repo.SessionInsights{
			City:          ExtractCity(s.Intents),
			Justification: s.CallOutcome.Justification,
			Interested:    interestOf(s.Intents),
		})
		if err != nil {
			return "", fmt.Errorf("merge session %s: %w", s.ConversationID, err)
		}
		if n > 0 && res != ResultApplied {
			res = ResultApplied
		}
	}
	return res, nil
}

// SessionEnd сохраняет длительность и транскрипт и закрывает сессию.
//
// Транскрипт и длительность пишутся всегда, даже если статус уже
// финальный. Событие, пришедшее раньше session-start, принимается.
func (r *Reconciler) SessionEnd(ctx context.Context, p SessionEndPayload) (Result, error) {
	sid := p.Metadata.CallSid
	if sid == "" {
		return ResultIgnored, nil
	}

	duration, err := SessionDuration(p.StartTime, p.EndTime)
	if err != nil {
		r.logger.Warn("bad session timestamps", "call_sid", sid, "error", err)
		duration = 0
	}
	transcript := BuildTranscript(p.Events)

	call, res, err := r.lookup(ctx, sid)
	if call == nil {
		return res, err
	}

	if duration > 0 || transcript != "" {
		if err := r.calls.SaveSessionEnd(ctx, call.ID, duration, transcript); err != nil {
			return "", err
		}
	}

	res, err = r.advance(ctx, call, callstate.SessionEnd(), repo.StatusUpdate{})
	if err != nil {
		return "", err
	}
	if res != ResultApplied && (duration > 0 || transcript != "") {
		res = ResultApplied
	}
	return res, nil
}

// TranscriptEvents отмечает подключение бота по первой реплике.
func (r *Reconciler) TranscriptEvents(ctx context.Context, p TranscriptEventsPayload) (Result, error) {
	if p.ExternalID == "" || !HasTranscript(p.Events) {
		return ResultIgnored, nil
	}

	call, res, err := r.lookup(ctx, p.ExternalID)
	if call == nil {
		return res, err
	}
	return r.advance(ctx, call, callstate.BotConnected(), repo.StatusUpdate{})
}

// lookup ищет звонок по CallSid. Для неизвестного звонка возвращает
// nil и ResultUnknownCall без ошибки.
func (r *Reconciler) lookup(ctx context.Context, sid string) (*domain.CallJob, Result, error) {
	call, err := r.calls.GetByProviderCallID(ctx, sid)
	if errors.Is(err, repo.ErrNotFound) {
		r.logger.Info("webhook for unknown call", "call_sid", sid)
		return nil, ResultUnknownCall, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("lookup call %s: %w", sid, err)
	}
	return call, "", nil
}

// advance применяет событие автомата к звонку с compare-and-swap записью.
// При конкурентной смене статуса перечитывает звонок и пробует снова.
func (r *Reconciler) advance(ctx context.Context, call *domain.CallJob, ev callstate.Event, upd repo.StatusUpdate) (Result, error) {
	log := telemetry.WithCallID(r.logger, call.ID)

	for attempt := 1; attempt <= maxCASAttempts; attempt++ {
		next, err := callstate.Next(call.Status, ev)
		if callstate.IsNoop(err) {
			log.Debug("event does not change status", "event", ev.Kind, "status", call.Status)
			return ResultNoop, nil
		}
		if err != nil {
			log.Warn("transition rejected", "event", ev.Kind, "status", call.Status, "error", err)
			return ResultRejected, nil
		}

		err = r.calls.Transition(ctx, call.ID, call.Status, next, upd)
		if err == nil {
			log.Info("call status changed", "from", call.Status, "to", next, "event", ev.Kind)
			return ResultApplied, nil
		}
		if !errors.Is(err, repo.ErrInvalidState) {
			return "", err
		}

		if call, err = r.calls.GetByID(ctx, call.ID); err != nil {
			return "", fmt.Errorf("reload call: %w", err)
		}
	}
	return "", fmt.Errorf("%w: call %d", ErrConflict, call.ID)
}
