package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Dialer/internal/domain"
)

// CampaignRepo — репозиторий для работы с кампаниями и их флагом запуска.
type CampaignRepo struct {
	pool *pgxpool.Pool
}

// NewCampaignRepo создаёт новый CampaignRepo.
func NewCampaignRepo(pool *pgxpool.Pool) *CampaignRepo {
	return &CampaignRepo{pool: pool}
}

// Create создаёт кампанию, все её звонки и состояние запуска в одной транзакции.
//
// Звонки вставляются через COPY в порядке слайса, поэтому их id
// повторяют порядок загруженного списка.
func (r *CampaignRepo) Create(ctx context.Context, campaign *domain.Campaign, calls []domain.CallJob) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO campaigns (id, name, status, total_calls, completed_calls, failed_calls, created_at)
			VALUES ($1, $2, $3, $4, 0, 0, $5)
		`,
			campaign.ID,
			campaign.Name,
			campaign.Status,
			campaign.TotalCalls,
			campaign.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert campaign: %w", err)
		}

		if len(calls) > 0 {
			rows := make([][]any, len(calls))
			for i, c := range calls {
				rows[i] = []any{c.CampaignID, c.Name, c.Phone, string(c.Status), string(c.AnalysisStatus), c.UpdatedAt}
			}
			_, err = tx.CopyFrom(ctx,
				pgx.Identifier{"calls"},
				[]string{"campaign_id", "name", "phone", "status", "analysis_status", "updated_at"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return fmt.Errorf("copy calls: %w", err)
			}
		}

		state := domain.NewRunState(campaign.ID, campaign.CreatedAt)
		_, err = tx.Exec(ctx, `
			INSERT INTO campaign_state (campaign_id, is_running, analysis_status, last_updated)
			VALUES ($1, $2, $3, $4)
		`, state.CampaignID, state.IsRunning, state.AnalysisStatus, state.LastUpdated)
		if err != nil {
			return fmt.Errorf("insert campaign state: %w", err)
		}
		return nil
	})
}

// GetByID возвращает кампанию по ID.
func (r *CampaignRepo) GetByID(ctx context.Context, id string) (*domain.Campaign, error) {
	var c domain.Campaign
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, status, total_calls, completed_calls, failed_calls, created_at
		FROM campaigns
		WHERE id = $1
	`, id).Scan(
		&c.ID,
		&c.Name,
		&c.Status,
		&c.TotalCalls,
		&c.CompletedCalls,
		&c.FailedCalls,
		&c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return &c, nil
}

// List возвращает все кампании с флагом запуска, новые первыми.
func (r *CampaignRepo) List(ctx context.Context) ([]domain.CampaignSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.name, c.status, c.total_calls, c.completed_calls, c.failed_calls, c.created_at,
		       COALESCE(s.is_running, false), COALESCE(s.analysis_status, 'not_started')
		FROM campaigns c
		LEFT JOIN campaign_state s ON s.campaign_id = c.id
		ORDER BY c.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var result []domain.CampaignSummary
	for rows.Next() {
		var s domain.CampaignSummary
		if err := rows.Scan(
			&s.ID,
			&s.Name,
			&s.Status,
			&s.TotalCalls,
			&s.CompletedCalls,
			&s.FailedCalls,
			&s.CreatedAt,
			&s.IsRunning,
			&s.AnalysisStatus,
		); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Delete удаляет кампанию; звонки и состояние удаляются каскадно.
func (r *CampaignRepo) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TryStart атомарно поднимает флаг запуска и переводит кампанию в running.
// Возвращает false, если флаг уже поднят.
func (r *CampaignRepo) TryStart(ctx context.Context, id string) (bool, error) {
	var started bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE campaign_state
			SET is_running = true, last_updated = now()
			WHERE campaign_id = $1 AND NOT is_running
		`, id)
		if err != nil {
			return fmt.Errorf("set running: %w", err)
		}
		if result.RowsAffected() == 0 {
			return stateExists(ctx, tx, id)
		}

		if err := setCampaignStatus(ctx, tx, id, domain.CampaignStatusRunning); err != nil {
			return err
		}
		started = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return started, nil
}

// Pause опускает флаг запуска и переводит кампанию в paused.
func (r *CampaignRepo) Pause(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE campaign_state
			SET is_running = false, last_updated = now()
			WHERE campaign_id = $1
		`, id)
		if err != nil {
			return fmt.Errorf("clear running: %w", err)
		}
		if result.RowsAffected() == 0 {
			return ErrNotFound
		}
		return setCampaignStatus(ctx, tx, id, domain.CampaignStatusPaused)
	})
}

// Complete завершает кампанию, если её флаг запуска всё ещё поднят.
// Возвращает false, если кампанию успели поставить на паузу.
func (r *CampaignRepo) Complete(ctx context.Context, id string) (bool, error) {
	var completed bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE campaign_state
			SET is_running = false, last_updated = now()
			WHERE campaign_id = $1 AND is_running
		`, id)
		if err != nil {
			return fmt.Errorf("clear running: %w", err)
		}
		if result.RowsAffected() == 0 {
			return nil
		}
		completed = true
		return setCampaignStatus(ctx, tx, id, domain.CampaignStatusCompleted)
	})
	if err != nil {
		return false, err
	}
	return completed, nil
}

// Stats возвращает статистику звонков кампании.
func (r *CampaignRepo) Stats(ctx context.Context, id string) (*domain.CampaignStats, error) {
	var stats domain.CampaignStats
	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(c.id),
			COUNT(c.id) FILTER (WHERE c.status = 'completed'),
			COUNT(c.id) FILTER (WHERE c.status IN ('failed', 'missed', 'rejected')),
			COUNT(c.id) FILTER (WHERE c.status IN ('pending', 'calling', 'bot_connected', 'user_connected')),
			COUNT(c.id) FILTER (WHERE c.status IN ('completed', 'failed', 'missed', 'rejected', 'bot_end', 'user_end')),
			s.is_running,
			s.analysis_status
		FROM campaign_state s
		LEFT JOIN calls c ON c.campaign_id = s.campaign_id
		WHERE s.campaign_id = $1
		GROUP BY s.is_running, s.analysis_status
	`, id).Scan(
		&stats.Total,
		&stats.Completed,
		&stats.Failed,
		&stats.Pending,
		&stats.Done,
		&stats.IsRunning,
		&stats.AnalysisStatus,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("campaign stats: %w", err)
	}
	return &stats, nil
}

// --- Helpers ---

func setCampaignStatus(ctx context.Context, tx pgx.Tx, id string, status domain.CampaignStatus) error {
	result, err := tx.Exec(ctx, `UPDATE campaigns SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// stateExists возвращает ErrNotFound, если у кампании нет состояния.
func stateExists(ctx context.Context, tx pgx.Tx, id string) error {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM campaign_state WHERE campaign_id = $1)
	`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check campaign state: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
