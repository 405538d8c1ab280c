// Package postgres provides a PostgreSQL Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ArionMiles/cardtracker/pkg/api"
	"github.com/ArionMiles/cardtracker/pkg/store"
)

//go:embed 001_create_card_transactions.sql
var migrationSQL string

// Config holds the PostgreSQL store configuration.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	// DSN, when set, is used instead of the individual connection fields.
	DSN string

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store persists card transactions in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// New connects to PostgreSQL and applies the schema migration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := cfg.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{pool: pool, logger: logger}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}
	s.logger.Debug("migrations completed")
	return nil
}

const insertSQL = `
	INSERT INTO card_transactions (
		issuer, amount, transaction_at, merchant, trusted, refund,
		email_subject, email_from, message_id
	) VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9)
	ON CONFLICT (message_id) DO NOTHING
	RETURNING id, created_at`

// Insert stores c unless its message ID is already present. The uniqueness
// check and the insert are one statement, so concurrent callers cannot both
// succeed and a conflict never aborts anything but this statement.
func (s *Store) Insert(ctx context.Context, c api.CandidateTransaction) (api.Record, bool, error) {
	rec := api.Record{CandidateTransaction: c}
	err := s.pool.QueryRow(ctx, insertSQL,
		c.Issuer, c.Amount, c.TransactionAt, c.Merchant, c.Trusted, c.Refund,
		c.Subject, c.Sender, c.MessageID,
	).Scan(&rec.ID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return api.Record{}, false, nil
	}
	if err != nil {
		return api.Record{}, false, classify(fmt.Errorf("inserting transaction %s: %w", c.MessageID, err))
	}
	return rec, true, nil
}

// classify marks data and integrity violations (SQLSTATE classes 22 and 23)
// as permanent.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (strings.HasPrefix(pgErr.Code, "22") || strings.HasPrefix(pgErr.Code, "23")) {
		return fmt.Errorf("%w: %w", store.ErrInvalidRecord, err)
	}
	return err
}

const selectColumns = `
	id, issuer, amount, transaction_at, COALESCE(merchant, ''), trusted, refund,
	email_subject, email_from, message_id, created_at`

func scanRecord(row pgx.Row) (api.Record, error) {
	var r api.Record
	err := row.Scan(
		&r.ID, &r.Issuer, &r.Amount, &r.TransactionAt, &r.Merchant, &r.Trusted, &r.Refund,
		&r.Subject, &r.Sender, &r.MessageID, &r.CreatedAt,
	)
	return r, err
}

func (s *Store) Get(ctx context.Context, id int64) (api.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM card_transactions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return api.Record{}, store.ErrNotFound
	}
	if err != nil {
		return api.Record{}, fmt.Errorf("getting transaction %d: %w", id, err)
	}
	return rec, nil
}

func (s *Store) List(ctx context.Context, f store.Filter) ([]api.Record, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Period != nil {
		where = append(where, "transaction_at >= "+arg(f.Period.From), "transaction_at < "+arg(f.Period.To))
	}
	if f.Issuer != "" {
		where = append(where, "issuer = "+arg(f.Issuer))
	}
	if f.Trusted != nil {
		where = append(where, "trusted = "+arg(*f.Trusted))
	}

	query := `SELECT ` + selectColumns + ` FROM card_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY transaction_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	defer rows.Close()

	out := []api.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return out, nil
}

func (s *Store) SetTrusted(ctx context.Context, id int64, trusted bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE card_transactions SET trusted = $2 WHERE id = $1`, id, trusted)
	if err != nil {
		return fmt.Errorf("updating transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM card_transactions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting transaction %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Averages are truncated toward zero to match integer division.
const aggregateColumns = `
	COALESCE(SUM(amount), 0)::BIGINT,
	COUNT(*),
	COALESCE(TRUNC(AVG(amount)), 0)::BIGINT`

func (s *Store) Summary(ctx context.Context, p store.Period, issuer string) (store.Summary, error) {
	query := `SELECT ` + aggregateColumns + ` FROM card_transactions
		WHERE trusted AND transaction_at >= $1 AND transaction_at < $2`
	args := []any{p.From, p.To}
	if issuer != "" {
		query += ` AND issuer = $3`
		args = append(args, issuer)
	}

	var sum store.Summary
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&sum.Total, &sum.Count, &sum.Average); err != nil {
		return store.Summary{}, fmt.Errorf("summarizing transactions: %w", err)
	}
	return sum, nil
}

func (s *Store) SummaryByIssuer(ctx context.Context, p store.Period) ([]store.Summary, error) {
	return s.groupByIssuer(ctx, `WHERE trusted AND transaction_at >= $1 AND transaction_at < $2`, p.From, p.To)
}

func (s *Store) AllTimeByIssuer(ctx context.Context) ([]store.Summary, error) {
	return s.groupByIssuer(ctx, `WHERE trusted`)
}

func (s *Store) groupByIssuer(ctx context.Context, where string, args ...any) ([]store.Summary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT issuer, `+aggregateColumns+` FROM card_transactions `+where+` GROUP BY issuer ORDER BY issuer COLLATE "C"`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing by issuer: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Summary, error) {
		var sum store.Summary
		err := row.Scan(&sum.Issuer, &sum.Total, &sum.Count, &sum.Average)
		return sum, err
	})
}

// Close closes the database connection pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
}
