// Package executor applies reconciliation plans to the target database
// under an advisory lock and records every run in a ledger table.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"pg_entity_sync/entity"
	"pg_entity_sync/plan"
)

type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	ModeTransaction   = "transaction"
	ModeNoTransaction = "no_transaction"

	// lockName seeds the advisory lock key; one key per database
	// serializes concurrent sync runs.
	lockName = "pg_entity_sync"
)

var (
	ErrLockNotAcquired = errors.New("another sync run holds the advisory lock")
	ErrInvalidTxMode   = errors.New("invalid transaction mode")
	ErrAlreadyApplied  = errors.New("script already executed")
)

type Options struct {
	// TransactionMode is ModeTransaction (default, all statements in one
	// transaction) or ModeNoTransaction (statement level autocommit).
	TransactionMode string
	// Force re-runs a stored script whose checksum the ledger already
	// records as executed.
	Force bool
}

// Run is one ledger entry.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Direction  string     `json:"direction"`
	Statements int        `json:"statements"`
	Checksum   string     `json:"checksum"`
	Status     string     `json:"status"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

type Executor struct {
	pool   *pgxpool.Pool
	logger Logger
}

func New(pool *pgxpool.Pool, logger Logger) *Executor {
	return &Executor{pool: pool, logger: logger}
}

// Apply executes the plan's forward statements. A plan computed against the
// current catalog is convergent, so no duplicate-run guard applies here.
func (e *Executor) Apply(ctx context.Context, p *plan.Plan, opts Options) (*Run, error) {
	e.logOperations(p)
	return e.execute(ctx, "apply", p.RenderUp(), opts, false)
}

// Rollback executes the plan's reverse statements, last operation first.
func (e *Executor) Rollback(ctx context.Context, p *plan.Plan, opts Options) (*Run, error) {
	return e.execute(ctx, "rollback", p.RenderDown(), opts, false)
}

// RunScript splits a stored SQL script and executes it under the same lock
// and ledger as a plan. Stored scripts are immutable, so a checksum the
// ledger already records as executed fails with ErrAlreadyApplied unless
// Force is set.
func (e *Executor) RunScript(ctx context.Context, direction, script string, opts Options) (*Run, error) {
	return e.execute(ctx, direction, entity.SplitStatements(script), opts, !opts.Force)
}

func (e *Executor) logOperations(p *plan.Plan) {
	for _, op := range p.Operations {
		e.logger.Info("planned operation", "op", string(op.Kind), "identity", op.Identity.String())
	}
}

func (e *Executor) execute(ctx context.Context, direction string, statements []string, opts Options, checkPrior bool) (*Run, error) {
	mode := opts.TransactionMode
	if mode == "" {
		mode = ModeTransaction
	}
	if mode != ModeTransaction && mode != ModeNoTransaction {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTxMode, mode)
	}

	// The advisory lock is session scoped, so the whole run pins one
	// pool connection.
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	key := advisoryKey(lockName)
	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, key).Scan(&locked); err != nil {
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !locked {
		return nil, ErrLockNotAcquired
	}
	defer conn.Exec(ctx, `SELECT pg_advisory_unlock($1)`, key) //nolint:errcheck

	if err := ensureRunsTable(ctx, conn); err != nil {
		return nil, err
	}

	sum := checksum(statements)
	if checkPrior {
		var prior int
		if err := conn.QueryRow(ctx, `
SELECT count(*) FROM entity_sync_runs WHERE checksum = $1 AND direction = $2 AND status = 'executed'
`, sum, direction).Scan(&prior); err != nil {
			return nil, fmt.Errorf("check prior runs: %w", err)
		}
		if prior > 0 {
			return nil, fmt.Errorf("%w: %s checksum %s", ErrAlreadyApplied, direction, sum)
		}
	}

	run := &Run{
		ID:         uuid.New(),
		Direction:  direction,
		Statements: len(statements),
		Checksum:   sum,
		Status:     "running",
		StartedAt:  time.Now().UTC(),
	}
	if _, err := conn.Exec(ctx, `
INSERT INTO entity_sync_runs (id, direction, statement_count, checksum, status, started_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, run.ID, run.Direction, run.Statements, run.Checksum, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	execErr := runStatements(ctx, conn, statements, mode)
	finish := time.Now().UTC()
	run.FinishedAt = &finish

	if execErr != nil {
		run.Status = "failed"
		run.Error = execErr.Error()
		_, _ = conn.Exec(ctx, `
UPDATE entity_sync_runs SET status = 'failed', error = $2, finished_at = $3 WHERE id = $1
`, run.ID, run.Error, finish)
		e.logger.Error("sync run failed", "run_id", run.ID.String(), "direction", direction, "error", execErr)
		return run, execErr
	}

	run.Status = "executed"
	_, _ = conn.Exec(ctx, `
UPDATE entity_sync_runs SET status = 'executed', finished_at = $2 WHERE id = $1
`, run.ID, finish)
	e.logger.Info("sync run finished", "run_id", run.ID.String(), "direction", direction, "statements", len(statements))
	return run, nil
}

func runStatements(ctx context.Context, conn *pgxpool.Conn, statements []string, mode string) error {
	apply := func(q interface {
		Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	}) error {
		for i, stmt := range statements {
			if _, err := q.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d of %d: %w", i+1, len(statements), err)
			}
		}
		return nil
	}

	if mode == ModeNoTransaction {
		return apply(conn)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := apply(tx); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return err
	}
	return tx.Commit(ctx)
}

// History returns recent ledger entries, newest first. A database that has
// never run a sync has no ledger table; that reads as empty history.
func (e *Executor) History(ctx context.Context, limit int) ([]Run, error) {
	rows, err := e.pool.Query(ctx, `
SELECT id, direction, statement_count, checksum, status, COALESCE(error, ''), started_at, finished_at
FROM entity_sync_runs
ORDER BY started_at DESC
LIMIT $1
`, limit)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			return nil, nil
		}
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Direction, &r.Statements, &r.Checksum, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func ensureRunsTable(ctx context.Context, conn *pgxpool.Conn) error {
	_, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS entity_sync_runs (
  id UUID PRIMARY KEY,
  direction TEXT NOT NULL,
  statement_count INT NOT NULL,
  checksum TEXT NOT NULL,
  status TEXT NOT NULL,
  error TEXT,
  started_at TIMESTAMPTZ NOT NULL,
  finished_at TIMESTAMPTZ
)
`)
	if err != nil {
		return fmt.Errorf("ensure runs table: %w", err)
	}
	return nil
}

// advisoryKey folds a name into the signed 64 bit key space
// pg_advisory_lock expects.
func advisoryKey(name string) int64 {
	sum := sha256.Sum256([]byte(name))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

func checksum(statements []string) string {
	h := sha256.New()
	for _, s := range statements {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
