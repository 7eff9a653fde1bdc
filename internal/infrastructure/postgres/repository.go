package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chaostheory/staking-service/internal/domain"
	"github.com/chaostheory/staking-service/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	insertSnapshotQuery = `
		INSERT INTO dashboard_snapshots (
			id, cycle_id, recorded_at, total_staked, reward_rate, period_finish,
			hub_apr, live_gauges, wallet, user_staked, user_earned
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cycle_id) DO NOTHING
		RETURNING id
	`

	insertGaugeQuery = `
		INSERT INTO gauge_snapshots (
			snapshot_id, symbol, status, gauge_address, reward_rate, period_finish,
			in_asset_apr, rewards_per_day, earned
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
)

// Repository records published view models. Rows are write-only from the
// service's point of view; the dashboard never reads them back.
type Repository struct {
	db     *pgxpool.Pool
	logger *logger.Logger
}

func NewRepository(db *pgxpool.Pool, logger *logger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) RecordSnapshot(ctx context.Context, vm *domain.DashboardViewModel) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// fresh context so rollback still runs after ctx expires
		_ = tx.Rollback(context.Background())
	}()

	row := snapshotRow(vm)

	var snapshotID uuid.UUID
	err = tx.QueryRow(ctx, insertSnapshotQuery, row...).Scan(&snapshotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debugw("Snapshot already recorded", "cycle_id", vm.CycleID)
			return nil
		}
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, g := range vm.Gauges {
		batch.Queue(insertGaugeQuery,
			snapshotID,
			g.Symbol,
			string(g.Status),
			g.GaugeAddress.Hex(),
			g.RewardRate.String(),
			g.PeriodFinish,
			g.InAssetAPR,
			g.RewardsPerDay,
			g.Earned.String(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to insert gauge snapshot %d: %w", i, err)
		}
	}

	// Close the batch result before committing the transaction
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch result: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debugw("Recorded snapshot", "cycle_id", vm.CycleID, "gauges", len(vm.Gauges))
	return nil
}

// PruneBefore deletes snapshots recorded before cutoff; gauge rows cascade.
func (r *Repository) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM dashboard_snapshots WHERE recorded_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

func snapshotRow(vm *domain.DashboardViewModel) []interface{} {
	var wallet, staked, earned *string
	if vm.User != nil {
		w := vm.User.Wallet.Hex()
		s := vm.User.Staked.String()
		e := vm.User.Earned.String()
		wallet, staked, earned = &w, &s, &e
	}

	cycleID, err := uuid.Parse(vm.CycleID)
	if err != nil {
		cycleID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(vm.CycleID))
	}

	return []interface{}{
		uuid.New(),
		cycleID,
		vm.UpdatedAt,
		vm.Hub.TotalStaked.String(),
		vm.Hub.RewardRate.String(),
		vm.Hub.PeriodFinish,
		vm.HubAPR,
		vm.LiveGauges(),
		wallet,
		staked,
		earned,
	}
}

// NoopRecorder is used when no database is configured.
type NoopRecorder struct{}

func (NoopRecorder) RecordSnapshot(context.Context, *domain.DashboardViewModel) error {
	return nil
}

func (NoopRecorder) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}
