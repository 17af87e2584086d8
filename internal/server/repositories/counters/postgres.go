// Package counters provides the storage backends for namespace counters
// used by the identifier allocator: PostgreSQL rows and Redis keys.
package counters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/rollcall/internal/common"
	"github.com/dmitrijs2005/rollcall/internal/dbx"
	"github.com/dmitrijs2005/rollcall/internal/idalloc"
)

// PostgresStore keeps one row per namespace in the counters table.
// It implements both idalloc.AtomicStore and idalloc.TxStore.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ idalloc.AtomicStore = (*PostgresStore)(nil)
var _ idalloc.TxStore = (*PostgresStore)(nil)

func (s *PostgresStore) Load(ctx context.Context, namespace string) (idalloc.Counter, error) {
	return load(ctx, s.db, namespace)
}

func load(ctx context.Context, db dbx.DBTX, namespace string) (idalloc.Counter, error) {
	query := `
		SELECT namespace, prefix, pad_width, last_issued
		FROM counters
		WHERE namespace = $1
	`
	var c idalloc.Counter
	err := db.QueryRowContext(ctx, query, namespace).Scan(&c.Namespace, &c.Prefix, &c.PadWidth, &c.LastIssued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return idalloc.Counter{}, common.ErrorNotFound
		}
		return idalloc.Counter{}, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// Increment creates or advances the counter in a single statement. The
// row lock taken by the upsert serializes concurrent increments.
func (s *PostgresStore) Increment(ctx context.Context, namespace string, policy idalloc.Policy) (idalloc.Counter, error) {
	query := `
		INSERT INTO counters (namespace, prefix, pad_width, last_issued)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (namespace) DO UPDATE
			SET last_issued = counters.last_issued + 1, updated_at = now()
			WHERE counters.prefix = EXCLUDED.prefix AND counters.pad_width = EXCLUDED.pad_width
		RETURNING last_issued
	`
	c := idalloc.Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth}
	err := s.db.QueryRowContext(ctx, query, namespace, policy.Prefix, policy.PadWidth).Scan(&c.LastIssued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// the WHERE clause filtered the update: policy differs
			return idalloc.Counter{}, idalloc.ErrPolicyMismatch
		}
		return idalloc.Counter{}, fmt.Errorf("db error: %w", err)
	}
	return c, nil
}

// CompareAndSwap re-reads the counter inside a REPEATABLE READ transaction
// and writes next only if it still equals expected.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, expected idalloc.Counter, next int64) error {
	err := dbx.WithTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelRepeatableRead}, func(ctx context.Context, tx dbx.DBTX) error {
		cur, err := load(ctx, tx, expected.Namespace)
		switch {
		case errors.Is(err, common.ErrorNotFound):
			if expected.LastIssued != 0 {
				return common.ErrConflict
			}
			return insertIfAbsent(ctx, tx, expected, next)
		case err != nil:
			return err
		case cur.LastIssued != expected.LastIssued:
			return common.ErrConflict
		case !cur.Matches(expected.Policy()):
			return idalloc.ErrPolicyMismatch
		}

		query := `
			UPDATE counters SET last_issued = $3, updated_at = now()
			WHERE namespace = $1 AND last_issued = $2
		`
		res, err := tx.ExecContext(ctx, query, expected.Namespace, expected.LastIssued, next)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return expectOneRow(res)
	})
	if dbx.IsConflict(err) {
		return common.ErrConflict
	}
	return err
}

func insertIfAbsent(ctx context.Context, tx dbx.DBTX, c idalloc.Counter, next int64) error {
	query := `
		INSERT INTO counters (namespace, prefix, pad_width, last_issued)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO NOTHING
	`
	res, err := tx.ExecContext(ctx, query, c.Namespace, c.Prefix, c.PadWidth, next)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrConflict
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

// Seed creates the counter at lastIssued or raises it; see idalloc.Store.
func (s *PostgresStore) Seed(ctx context.Context, namespace string, policy idalloc.Policy, lastIssued int64) (idalloc.Counter, error) {
	query := `
		INSERT INTO counters (namespace, prefix, pad_width, last_issued)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (namespace) DO UPDATE
			SET last_issued = EXCLUDED.last_issued, updated_at = now()
			WHERE counters.prefix = EXCLUDED.prefix
				AND counters.pad_width = EXCLUDED.pad_width
				AND counters.last_issued <= EXCLUDED.last_issued
		RETURNING last_issued
	`
	c := idalloc.Counter{Namespace: namespace, Prefix: policy.Prefix, PadWidth: policy.PadWidth}
	err := s.db.QueryRowContext(ctx, query, namespace, policy.Prefix, policy.PadWidth, lastIssued).Scan(&c.LastIssued)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return idalloc.Counter{}, fmt.Errorf("db error: %w", err)
	}

	cur, err := s.Load(ctx, namespace)
	if err != nil {
		return idalloc.Counter{}, err
	}
	if !cur.Matches(policy) {
		return idalloc.Counter{}, idalloc.ErrPolicyMismatch
	}
	return idalloc.Counter{}, fmt.Errorf("%w: counter %q is already at %d", common.ErrInvalidArgument, namespace, cur.LastIssued)
}
