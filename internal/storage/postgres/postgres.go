// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/sentinel-bot/internal/storage"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements storage.Storage using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New подключается к базе, проверяет соединение и применяет миграции.
func New(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   newPgxLogger(logger),
		LogLevel: tracelog.LogLevelWarn,
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool, logger: logger.Named("postgres")}
	if err := s.RunMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// RunMigrations применяет встроенные SQL файлы по порядку имени.
func (s *Store) RunMigrations(ctx context.Context) error {
	const createTracker = `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`
	if _, err := s.pool.Exec(ctx, createTracker); err != nil {
		return fmt.Errorf("postgres: create schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)", name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", name, err)
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (filename) VALUES ($1)", name)
			return err
		})
		if err != nil {
			return fmt.Errorf("postgres: apply migration %s: %w", name, err)
		}
		s.logger.Info("Migration applied", zap.String("file", name))
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return storage.Wrap("postgres.Ping", s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Wallets

func (s *Store) SaveWallet(ctx context.Context, w *models.Wallet) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wallets (user_id, public_key, encrypted_private_key, salt, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			public_key = EXCLUDED.public_key,
			encrypted_private_key = EXCLUDED.encrypted_private_key,
			salt = EXCLUDED.salt,
			created_at = EXCLUDED.created_at`,
		w.UserID, w.PublicKey, w.EncryptedPrivateKey, w.Salt, w.CreatedAt)
	return storage.Wrap("postgres.SaveWallet", err)
}

func (s *Store) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, public_key, encrypted_private_key, salt, created_at
		FROM wallets WHERE user_id = $1`, userID).
		Scan(&w.UserID, &w.PublicKey, &w.EncryptedPrivateKey, &w.Salt, &w.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("postgres.GetWallet", err)
	}
	return &w, nil
}

// Positions

const positionSelectCols = `id, user_id, asset_address, invested_amount, entry_price, asset_amount,
	amount_estimated, simulated, status, open_signature, close_signature, exit_price,
	opened_at, closed_at`

func scanPositionRow(row pgx.Row) (models.Position, error) {
	var (
		p                models.Position
		invested, amount int64
		status           string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.AssetAddress, &invested, &p.EntryPrice, &amount,
		&p.AmountEstimated, &p.Simulated, &status, &p.OpenSignature, &p.CloseSignature, &p.ExitPrice,
		&p.OpenedAt, &p.ClosedAt)
	if err != nil {
		return models.Position{}, err
	}
	p.InvestedAmount = uint64(invested)
	p.AssetAmount = uint64(amount)
	p.Status = models.PositionStatus(status)
	return p, nil
}

func (s *Store) CreatePosition(ctx context.Context, p *models.Position) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = time.Now()
	}
	p.Status = models.StatusOpen

	err := s.pool.QueryRow(ctx, `
		INSERT INTO positions (user_id, asset_address, invested_amount, entry_price, asset_amount,
			amount_estimated, simulated, status, open_signature, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		p.UserID, p.AssetAddress, int64(p.InvestedAmount), p.EntryPrice, int64(p.AssetAmount),
		p.AmountEstimated, p.Simulated, string(p.Status), p.OpenSignature, p.OpenedAt,
	).Scan(&p.ID)
	if err != nil {
		return 0, storage.Wrap("postgres.CreatePosition", err)
	}
	return p.ID, nil
}

func (s *Store) GetPosition(ctx context.Context, id int64) (*models.Position, error) {
	p, err := scanPositionRow(s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("postgres.GetPosition", err)
	}
	return &p, nil
}

func (s *Store) listPositions(ctx context.Context, op, where string, args ...any) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+positionSelectCols+` FROM positions WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, storage.Wrap(op, err)
		}
		out = append(out, p)
	}
	return out, storage.Wrap(op, rows.Err())
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.listPositions(ctx, "postgres.ListOpenPositions", "status = $1", string(models.StatusOpen))
}

func (s *Store) ListClosingPositions(ctx context.Context) ([]models.Position, error) {
	return s.listPositions(ctx, "postgres.ListClosingPositions", "status = $1", string(models.StatusClosing))
}

func (s *Store) ListPositions(ctx context.Context, userID int64) ([]models.Position, error) {
	return s.listPositions(ctx, "postgres.ListPositions", "user_id = $1", userID)
}

func (s *Store) BeginClose(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE positions SET status = 'CLOSING' WHERE id = $1 AND status = 'OPEN'`, id)
	if err != nil {
		return false, storage.Wrap("postgres.BeginClose", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ReleaseClose(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE positions SET status = 'OPEN' WHERE id = $1 AND status = 'CLOSING'`, id)
	return storage.Wrap("postgres.ReleaseClose", err)
}

func (s *Store) ClosePosition(ctx context.Context, id int64, d models.CloseDetails) error {
	const op = "postgres.ClosePosition"
	if d.ClosedAt.IsZero() {
		d.ClosedAt = time.Now()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE positions SET
			status = 'CLOSED',
			close_signature = $2,
			exit_price = $3,
			closed_at = $4
		WHERE id = $1 AND status <> 'CLOSED'`,
		id, d.Signature, d.ExitPrice, d.ClosedAt)
	if err != nil {
		return storage.Wrap(op, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM positions WHERE id = $1)`, id).Scan(&exists); err != nil {
		return storage.Wrap(op, err)
	}
	if !exists {
		return storage.ErrNotFound
	}
	return nil
}

// Risk settings

func (s *Store) GetRiskSettings(ctx context.Context, userID int64) (models.RiskSettings, error) {
	const op = "postgres.GetRiskSettings"
	d := models.DefaultRiskSettings(userID)
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO risk_settings (user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, int32(d.SlippageBps), d.AutoBuy, d.AutoSell, d.SimulationMode,
		d.TakeProfitPct, d.StopLossPct); err != nil {
		return models.RiskSettings{}, storage.Wrap(op, err)
	}

	var (
		r        models.RiskSettings
		slippage int32
	)
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct, updated_at
		FROM risk_settings WHERE user_id = $1`, userID).
		Scan(&r.UserID, &slippage, &r.AutoBuy, &r.AutoSell, &r.SimulationMode,
			&r.TakeProfitPct, &r.StopLossPct, &r.UpdatedAt)
	if err != nil {
		return models.RiskSettings{}, storage.Wrap(op, err)
	}
	r.SlippageBps = types.SlippageBps(slippage)
	return r, nil
}

func (s *Store) SaveRiskSettings(ctx context.Context, r models.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO risk_settings (user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			slippage_bps = EXCLUDED.slippage_bps,
			auto_buy = EXCLUDED.auto_buy,
			auto_sell = EXCLUDED.auto_sell,
			simulation_mode = EXCLUDED.simulation_mode,
			take_profit_pct = EXCLUDED.take_profit_pct,
			stop_loss_pct = EXCLUDED.stop_loss_pct,
			updated_at = NOW()`,
		r.UserID, int32(r.SlippageBps), r.AutoBuy, r.AutoSell, r.SimulationMode,
		r.TakeProfitPct, r.StopLossPct)
	return storage.Wrap("postgres.SaveRiskSettings", err)
}

var _ storage.Storage = (*Store)(nil)
