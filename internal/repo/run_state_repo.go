package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Dialer/internal/domain"
)

// RunStateRepo — репозиторий состояния запуска кампаний
// (флаг is_running и статус пакетного анализа).
type RunStateRepo struct {
	pool *pgxpool.Pool
}

// NewRunStateRepo создаёт новый RunStateRepo.
func NewRunStateRepo(pool *pgxpool.Pool) *RunStateRepo {
	return &RunStateRepo{pool: pool}
}

// Get возвращает состояние кампании.
func (r *RunStateRepo) Get(ctx context.Context, campaignID string) (*domain.RunState, error) {
	var s domain.RunState
	err := r.pool.QueryRow(ctx, `
		SELECT campaign_id, is_running, analysis_status, last_updated
		FROM campaign_state
		WHERE campaign_id = $1
	`, campaignID).Scan(&s.CampaignID, &s.IsRunning, &s.AnalysisStatus, &s.LastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign state: %w", err)
	}
	return &s, nil
}

// IsRunning возвращает текущее значение флага запуска.
// Для несуществующей кампании возвращает ErrNotFound.
func (r *RunStateRepo) IsRunning(ctx context.Context, campaignID string) (bool, error) {
	var running bool
	err := r.pool.QueryRow(ctx, `
		SELECT is_running FROM campaign_state WHERE campaign_id = $1
	`, campaignID).Scan(&running)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("get running flag: %w", err)
	}
	return running, nil
}

// ListRunning возвращает ID кампаний с поднятым флагом запуска.
func (r *RunStateRepo) ListRunning(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT campaign_id FROM campaign_state WHERE is_running ORDER BY last_updated ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list running campaigns: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan running campaigns: %w", err)
	}
	return ids, nil
}

// TryBeginAnalysis атомарно переводит анализ в processing.
// Возвращает false, если анализ уже выполняется.
func (r *RunStateRepo) TryBeginAnalysis(ctx context.Context, campaignID string) (bool, error) {
	var begun bool
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE campaign_state
			SET analysis_status = $2, last_updated = now()
			WHERE campaign_id = $1 AND analysis_status <> $2
		`, campaignID, domain.AnalysisStatusProcessing)
		if err != nil {
			return fmt.Errorf("begin analysis: %w", err)
		}
		if result.RowsAffected() == 0 {
			return stateExists(ctx, tx, campaignID)
		}
		begun = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return begun, nil
}

// FailInterruptedAnalyses переводит все анализы в processing в failed
// и возвращает ID их кампаний.
func (r *RunStateRepo) FailInterruptedAnalyses(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE campaign_state
		SET analysis_status = $1, last_updated = now()
		WHERE analysis_status = $2
		RETURNING campaign_id
	`, domain.AnalysisStatusFailed, domain.AnalysisStatusProcessing)
	if err != nil {
		return nil, fmt.Errorf("fail interrupted analyses: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan campaign id: %w", err)
	}
	return ids, nil
}

// SetAnalysisStatus записывает итоговый статус анализа.
func (r *RunStateRepo) SetAnalysisStatus(ctx context.Context, campaignID string, status domain.AnalysisStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE campaign_state
		SET analysis_status = $2, last_updated = now()
		WHERE campaign_id = $1
	`, campaignID, status)
	if err != nil {
		return fmt.Errorf("set analysis status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
