// Package sqlite implements storage.Storage on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/rovshanmuradov/sentinel-bot/internal/storage"
	"github.com/rovshanmuradov/sentinel-bot/internal/storage/models"
	"github.com/rovshanmuradov/sentinel-bot/internal/types"
)

const schema = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;

CREATE TABLE IF NOT EXISTS wallets (
    user_id INTEGER PRIMARY KEY,
    public_key TEXT NOT NULL,
    encrypted_private_key BLOB NOT NULL,
    salt BLOB NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS positions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    asset_address TEXT NOT NULL,
    invested_amount INTEGER NOT NULL,
    entry_price REAL NOT NULL,
    asset_amount INTEGER NOT NULL,
    amount_estimated INTEGER NOT NULL DEFAULT 0,
    simulated INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL DEFAULT 'OPEN',
    open_signature TEXT NOT NULL DEFAULT '',
    close_signature TEXT NOT NULL DEFAULT '',
    exit_price REAL NOT NULL DEFAULT 0,
    opened_at INTEGER NOT NULL,
    closed_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status);
CREATE INDEX IF NOT EXISTS idx_positions_user ON positions(user_id);

CREATE TABLE IF NOT EXISTS risk_settings (
    user_id INTEGER PRIMARY KEY,
    slippage_bps INTEGER NOT NULL,
    auto_buy INTEGER NOT NULL,
    auto_sell INTEGER NOT NULL,
    simulation_mode INTEGER NOT NULL,
    take_profit_pct REAL NOT NULL,
    stop_loss_pct REAL NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store wraps the SQL handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New opens (and creates if needed) the SQLite database at path.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // один писатель: переходы статусов сериализуются
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return storage.Wrap("sqlite.Ping", s.db.PingContext(ctx))
}

// Close releases the underlying DB handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Wallets

func (s *Store) SaveWallet(ctx context.Context, w *models.Wallet) error {
	const op = "sqlite.SaveWallet"
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, public_key, encrypted_private_key, salt, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			public_key = excluded.public_key,
			encrypted_private_key = excluded.encrypted_private_key,
			salt = excluded.salt,
			created_at = excluded.created_at`,
		w.UserID, w.PublicKey, w.EncryptedPrivateKey, w.Salt, toMillis(w.CreatedAt))
	return storage.Wrap(op, err)
}

func (s *Store) GetWallet(ctx context.Context, userID int64) (*models.Wallet, error) {
	const op = "sqlite.GetWallet"
	var (
		w       models.Wallet
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, public_key, encrypted_private_key, salt, created_at
		FROM wallets WHERE user_id = ?`, userID).
		Scan(&w.UserID, &w.PublicKey, &w.EncryptedPrivateKey, &w.Salt, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	w.CreatedAt = fromMillis(created)
	return &w, nil
}

// Positions

const positionCols = `id, user_id, asset_address, invested_amount, entry_price, asset_amount,
	amount_estimated, simulated, status, open_signature, close_signature, exit_price,
	opened_at, closed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (models.Position, error) {
	var (
		p                    models.Position
		invested, amount     int64
		estimated, simulated int
		status               string
		opened               int64
		closed               sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.AssetAddress, &invested, &p.EntryPrice, &amount,
		&estimated, &simulated, &status, &p.OpenSignature, &p.CloseSignature, &p.ExitPrice,
		&opened, &closed); err != nil {
		return models.Position{}, err
	}
	p.InvestedAmount = uint64(invested)
	p.AssetAmount = uint64(amount)
	p.AmountEstimated = estimated != 0
	p.Simulated = simulated != 0
	p.Status = models.PositionStatus(status)
	p.OpenedAt = fromMillis(opened)
	if closed.Valid {
		t := fromMillis(closed.Int64)
		p.ClosedAt = &t
	}
	return p, nil
}

func (s *Store) CreatePosition(ctx context.Context, p *models.Position) (int64, error) {
	const op = "sqlite.CreatePosition"
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if p.OpenedAt.IsZero() {
		p.OpenedAt = s.now()
	}
	p.Status = models.StatusOpen

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (user_id, asset_address, invested_amount, entry_price, asset_amount,
			amount_estimated, simulated, status, open_signature, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.AssetAddress, int64(p.InvestedAmount), p.EntryPrice, int64(p.AssetAmount),
		boolInt(p.AmountEstimated), boolInt(p.Simulated), string(p.Status), p.OpenSignature,
		toMillis(p.OpenedAt))
	if err != nil {
		return 0, storage.Wrap(op, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.Wrap(op, err)
	}
	p.ID = id
	return id, nil
}

func (s *Store) GetPosition(ctx context.Context, id int64) (*models.Position, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+positionCols+` FROM positions WHERE id = ?`, id)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Wrap("sqlite.GetPosition", err)
	}
	return &p, nil
}

func (s *Store) listPositions(ctx context.Context, op, where string, args ...any) ([]models.Position, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+positionCols+` FROM positions WHERE `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, storage.Wrap(op, err)
	}
	defer rows.Close()

	var out []models.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, storage.Wrap(op, err)
		}
		out = append(out, p)
	}
	return out, storage.Wrap(op, rows.Err())
}

func (s *Store) ListOpenPositions(ctx context.Context) ([]models.Position, error) {
	return s.listPositions(ctx, "sqlite.ListOpenPositions", "status = ?", string(models.StatusOpen))
}

func (s *Store) ListClosingPositions(ctx context.Context) ([]models.Position, error) {
	return s.listPositions(ctx, "sqlite.ListClosingPositions", "status = ?", string(models.StatusClosing))
}

func (s *Store) ListPositions(ctx context.Context, userID int64) ([]models.Position, error) {
	return s.listPositions(ctx, "sqlite.ListPositions", "user_id = ?", userID)
}

func (s *Store) BeginClose(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusClosing), id, string(models.StatusOpen))
	if err != nil {
		return false, storage.Wrap("sqlite.BeginClose", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Wrap("sqlite.BeginClose", err)
	}
	return n == 1, nil
}

func (s *Store) ReleaseClose(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET status = ? WHERE id = ? AND status = ?`,
		string(models.StatusOpen), id, string(models.StatusClosing))
	return storage.Wrap("sqlite.ReleaseClose", err)
}

func (s *Store) ClosePosition(ctx context.Context, id int64, d models.CloseDetails) error {
	const op = "sqlite.ClosePosition"
	if d.ClosedAt.IsZero() {
		d.ClosedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE positions SET status = ?, close_signature = ?, exit_price = ?, closed_at = ?
		WHERE id = ? AND status != ?`,
		string(models.StatusClosed), d.Signature, d.ExitPrice, toMillis(d.ClosedAt),
		id, string(models.StatusClosed))
	if err != nil {
		return storage.Wrap(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Wrap(op, err)
	}
	if n == 1 {
		return nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, `SELECT 1 FROM positions WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return storage.Wrap(op, err)
}

// Risk settings

func (s *Store) GetRiskSettings(ctx context.Context, userID int64) (models.RiskSettings, error) {
	const op = "sqlite.GetRiskSettings"
	d := models.DefaultRiskSettings(userID)
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_settings (user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING`,
		userID, int(d.SlippageBps), boolInt(d.AutoBuy), boolInt(d.AutoSell), boolInt(d.SimulationMode),
		d.TakeProfitPct, d.StopLossPct, toMillis(s.now())); err != nil {
		return models.RiskSettings{}, storage.Wrap(op, err)
	}

	var (
		r                      models.RiskSettings
		slippage               int
		autoBuy, autoSell, sim int
		updated                int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct, updated_at
		FROM risk_settings WHERE user_id = ?`, userID).
		Scan(&r.UserID, &slippage, &autoBuy, &autoSell, &sim, &r.TakeProfitPct, &r.StopLossPct, &updated)
	if err != nil {
		return models.RiskSettings{}, storage.Wrap(op, err)
	}
	r.SlippageBps = types.SlippageBps(slippage)
	r.AutoBuy = autoBuy != 0
	r.AutoSell = autoSell != 0
	r.SimulationMode = sim != 0
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

func (s *Store) SaveRiskSettings(ctx context.Context, r models.RiskSettings) error {
	if err := r.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_settings (user_id, slippage_bps, auto_buy, auto_sell, simulation_mode,
			take_profit_pct, stop_loss_pct, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			slippage_bps = excluded.slippage_bps,
			auto_buy = excluded.auto_buy,
			auto_sell = excluded.auto_sell,
			simulation_mode = excluded.simulation_mode,
			take_profit_pct = excluded.take_profit_pct,
			stop_loss_pct = excluded.stop_loss_pct,
			updated_at = excluded.updated_at`,
		r.UserID, int(r.SlippageBps), boolInt(r.AutoBuy), boolInt(r.AutoSell), boolInt(r.SimulationMode),
		r.TakeProfitPct, r.StopLossPct, toMillis(s.now()))
	return storage.Wrap("sqlite.SaveRiskSettings", err)
}

var _ storage.Storage = (*Store)(nil)
