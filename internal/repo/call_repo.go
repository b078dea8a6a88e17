package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Dialer/internal/domain"
)

// callColumns — колонки calls в порядке scanCall.
const callColumns = `
	id, campaign_id, name, phone, status, provider_call_id, conversation_id,
	recording_url, duration, error_message, retry_count, feedback, transcript,
	preferred_city, interested, analysis_outcome, analysis_status, updated_at`

// CallRepo — репозиторий для работы со звонками.
type CallRepo struct {
	pool *pgxpool.Pool
}

// NewCallRepo создаёт новый CallRepo.
func NewCallRepo(pool *pgxpool.Pool) *CallRepo {
	return &CallRepo{pool: pool}
}

// StatusUpdate — поля, записываемые вместе со сменой статуса.
// Пустые значения не перезаписывают уже сохранённые.
type StatusUpdate struct {
	RecordingURL   string
	Duration       int
	ErrorMessage   string
	IncrementRetry bool
}

// Transition меняет статус звонка с from на to (compare-and-swap).
//
// Если статус в БД уже не равен from, возвращает ErrInvalidState:
// вызывающий код перечитывает звонок и заново применяет автомат.
// Переход в финальный статус в той же транзакции увеличивает
// счётчик кампании: completed_calls для completed, failed_calls для
// failed, missed и rejected.
func (r *CallRepo) Transition(ctx context.Context, id int64, from, to domain.CallStatus, upd StatusUpdate) error {
	retryInc := 0
	if upd.IncrementRetry {
		retryInc = 1
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var campaignID string
		err := tx.QueryRow(ctx, `
			UPDATE calls
			SET status        = $3,
			    recording_url = COALESCE($4, recording_url),
			    duration      = CASE WHEN $5::int > 0 THEN $5::int ELSE duration END,
			    error_message = COALESCE($6, error_message),
			    retry_count   = retry_count + $7,
			    updated_at    = now()
			WHERE id = $1 AND status = $2
			RETURNING campaign_id
		`,
			id,
			from,
			to,
			nullString(upd.RecordingURL),
			upd.Duration,
			nullString(upd.ErrorMessage),
			retryInc,
		).Scan(&campaignID)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: call %d is no longer %s", ErrInvalidState, id, from)
		}
		if err != nil {
			return fmt.Errorf("update call status: %w", err)
		}

		if !to.IsTerminal() {
			return nil
		}

		counter := "failed_calls"
		if to == domain.CallStatusCompleted {
			counter = "completed_calls"
		}
		_, err = tx.Exec(ctx,
			`UPDATE campaigns SET `+counter+` = `+counter+` + 1 WHERE id = $1`,
			campaignID,
		)
		if err != nil {
			return fmt.Errorf("increment %s: %w", counter, err)
		}
		return nil
	})
}

// NextPending возвращает самый ранний pending-звонок кампании.
func (r *CallRepo) NextPending(ctx context.Context, campaignID string) (*domain.CallJob, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE campaign_id = $1 AND status = 'pending'
		ORDER BY id ASC
		LIMIT 1
	`
	return scanCall(r.pool.QueryRow(ctx, query, campaignID))
}

// CountPending возвращает количество pending-звонков кампании.
func (r *CallRepo) CountPending(ctx context.Context, campaignID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM calls WHERE campaign_id = $1 AND status = 'pending'
	`, campaignID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending calls: %w", err)
	}
	return count, nil
}

// GetByID возвращает звонок по ID.
func (r *CallRepo) GetByID(ctx context.Context, id int64) (*domain.CallJob, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(r.pool.QueryRow(ctx, query, id))
}

// GetByProviderCallID возвращает звонок по CallSid провайдера.
func (r *CallRepo) GetByProviderCallID(ctx context.Context, providerCallID string) (*domain.CallJob, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	return scanCall(r.pool.QueryRow(ctx, query, providerCallID))
}

// GetByConversationID возвращает звонок по идентификатору сессии бота.
func (r *CallRepo) GetByConversationID(ctx context.Context, conversationID string) (*domain.CallJob, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE conversation_id = $1
		ORDER BY id ASC
		LIMIT 1
	`
	return scanCall(r.pool.QueryRow(ctx, query, conversationID))
}

// ListByCampaign возвращает все звонки кампании в порядке обзвона.
func (r *CallRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.CallJob, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE campaign_id = $1 ORDER BY id ASC`
	return r.list(ctx, query, campaignID)
}

// ListStaleCalling возвращает звонки, застрявшие в calling дольше olderThan.
// Учитываются только звонки, уже получившие CallSid.
func (r *CallRepo) ListStaleCalling(ctx context.Context, olderThan time.Time, limit int) ([]domain.CallJob, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE status = 'calling'
		  AND provider_call_id IS NOT NULL
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.list(ctx, query, olderThan, limit)
}

// ListAnalyzable возвращает звонки с транскриптом, ещё не прошедшие анализ.
func (r *CallRepo) ListAnalyzable(ctx context.Context, campaignID string) ([]domain.CallJob, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE campaign_id = $1
		  AND transcript IS NOT NULL
		  AND transcript <> ''
		  AND provider_call_id IS NOT NULL
		  AND analysis_status = 'pending'
		ORDER BY id ASC
	`
	return r.list(ctx, query, campaignID)
}

// ListAnalyzed возвращает звонки с завершённым анализом.
func (r *CallRepo) ListAnalyzed(ctx context.Context, campaignID string) ([]domain.CallJob, error) {
	query := `SELECT ` + callColumns + `
		FROM calls
		WHERE campaign_id = $1 AND analysis_status = 'completed'
		ORDER BY id ASC
	`
	return r.list(ctx, query, campaignID)
}

// SaveProviderCallID сохраняет CallSid, полученный при размещении звонка.
func (r *CallRepo) SaveProviderCallID(ctx context.Context, id int64, providerCallID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE calls SET provider_call_id = $2 WHERE id = $1
	`, id, providerCallID)
	if err != nil {
		return fmt.Errorf("save provider call id: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetConversationID привязывает звонок к сессии голосового бота.
func (r *CallRepo) SetConversationID(ctx context.Context, id int64, conversationID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calls SET conversation_id = COALESCE($2, conversation_id) WHERE id = $1
	`, id, nullString(conversationID))
	if err != nil {
		return fmt.Errorf("set conversation id: %w", err)
	}
	return nil
}

// SessionInsights — данные прошлой сессии бота для слияния со звонком.
type SessionInsights struct {
	City          string
	Justification string
	Interested    domain.Interest
}

// MergeSessionInsights сливает данные прошлой сессии в звонок с conversationID.
//
// Город сохраняется только если он ещё не известен. Обоснование
// дописывается в feedback, повторная доставка его не дублирует.
// Интерес «yes» не сбрасывается последующим «no».
func (r *CallRepo) MergeSessionInsights(ctx context.Context, conversationID string, in SessionInsights) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET preferred_city = COALESCE(preferred_city, $2),
		    feedback = CASE
		        WHEN $3::text IS NULL THEN feedback
		        WHEN feedback IS NULL OR feedback = '' THEN $3::text
		        WHEN strpos(feedback, $3::text) > 0 THEN feedback
		        ELSE feedback || E'\n' || $3::text
		    END,
		    interested = CASE
		        WHEN interested = 'yes' THEN interested
		        ELSE COALESCE($4, interested)
		    END
		WHERE conversation_id = $1
	`,
		conversationID,
		nullString(in.City),
		nullString(in.Justification),
		nullString(string(in.Interested)),
	)
	if err != nil {
		return 0, fmt.Errorf("merge session insights: %w", err)
	}
	return result.RowsAffected(), nil
}

// SaveSessionEnd сохраняет длительность сессии и транскрипт.
// Пустой транскрипт и нулевая длительность не перезаписывают сохранённые.
func (r *CallRepo) SaveSessionEnd(ctx context.Context, id int64, duration int, transcript string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET duration   = CASE WHEN $2::int > 0 THEN $2::int ELSE duration END,
		    transcript = COALESCE($3, transcript)
		WHERE id = $1
	`, id, duration, nullString(transcript))
	if err != nil {
		return fmt.Errorf("save session end: %w", err)
	}
	return nil
}

// AnalysisResult — результат анализа одного звонка.
type AnalysisResult struct {
	ProviderCallID string
	City           string
	Interested     domain.Interest
	Outcome        string
}

// SaveAnalysisResult сохраняет результат анализа и помечает звонок проанализированным.
func (r *CallRepo) SaveAnalysisResult(ctx context.Context, campaignID string, res AnalysisResult) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE calls
		SET preferred_city   = COALESCE(preferred_city, $3),
		    interested       = COALESCE($4, interested),
		    analysis_outcome = COALESCE($5, analysis_outcome),
		    analysis_status  = 'completed'
		WHERE campaign_id = $1 AND provider_call_id = $2
	`,
		campaignID,
		res.ProviderCallID,
		nullString(res.City),
		nullString(string(res.Interested)),
		nullString(res.Outcome),
	)
	if err != nil {
		return fmt.Errorf("save analysis result: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func (r *CallRepo) list(ctx context.Context, query string, args ...any) ([]domain.CallJob, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	var calls []domain.CallJob
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, *call)
	}
	return calls, rows.Err()
}

// scanCall сканирует строку calls (pgx.Row или pgx.Rows) в CallJob.
func scanCall(row pgx.Row) (*domain.CallJob, error) {
	var c domain.CallJob
	var providerCallID, conversationID, recordingURL, errorMessage *string
	var feedback, transcript, city, interested, outcome *string

	err := row.Scan(
		&c.ID,
		&c.CampaignID,
		&c.Name,
		&c.Phone,
		&c.Status,
		&providerCallID,
		&conversationID,
		&recordingURL,
		&c.Duration,
		&errorMessage,
		&c.RetryCount,
		&feedback,
		&transcript,
		&city,
		&interested,
		&outcome,
		&c.AnalysisStatus,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan call: %w", err)
	}

	c.ProviderCallID = deref(providerCallID)
	c.ConversationID = deref(conversationID)
	c.RecordingURL = deref(recordingURL)
	c.ErrorMessage = deref(errorMessage)
	c.Feedback = deref(feedback)
	c.Transcript = deref(transcript)
	c.PreferredCity = deref(city)
	c.Interested = domain.Interest(deref(interested))
	c.AnalysisOutcome = deref(outcome)

	return &c, nil
}
