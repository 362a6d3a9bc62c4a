// Package postgres provides a PostgreSQL task.Store built on pgx/v5.
// Arguments and results are stored as JSONB. Status transitions run in a
// transaction holding a row lock, so every update is atomic.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/relay/pkg/storage"
	"github.com/rhuss/relay/pkg/task"
)

// Store is a PostgreSQL-backed task store.
type Store struct {
	pool *pgxpool.Pool
}

var _ task.Store = (*Store)(nil)

// New connects to PostgreSQL and, if configured, applies migrations.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := cfg.poolConfig()
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}
	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}
	return s, nil
}

const selectColumns = `id, tenant_id, capability_name, arguments, status, result, error, created_at, updated_at`

// Create inserts a new task stamped with the context tenant.
func (s *Store) Create(ctx context.Context, t *task.Task) error {
	tenantID := t.TenantID
	if tenantID == "" {
		tenantID = storage.GetTenant(ctx)
	}

	args, err := marshalArguments(t.Arguments)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, tenant_id, capability_name, arguments, status, result, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		t.ID, tenantID, t.CapabilityName, args, string(t.Status),
		nullJSON(t.Result), t.Error, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("%w: %s", task.ErrConflict, t.ID)
		}
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

// Get returns the task if it is visible to the context tenant.
func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, err
	}
	if !storage.Visible(ctx, t.TenantID) {
		return nil, task.ErrNotFound
	}
	return t, nil
}

// Update locks the row, validates the transition and writes the new state
// in one transaction.
func (s *Store) Update(ctx context.Context, id string, u task.Update) (*task.Task, error) {
	var next *task.Task
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id)
		cur, err := scanTask(row)
		if err != nil {
			return err
		}
		if !storage.Visible(ctx, cur.TenantID) {
			return task.ErrNotFound
		}
		next, err = u.Apply(cur, time.Now().UTC())
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE tasks SET status = $2, result = $3, error = $4, updated_at = $5
			WHERE id = $1
		`, id, string(next.Status), nullJSON(next.Result), next.Error, next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

// List returns visible tasks matching f, newest first.
func (s *Store) List(ctx context.Context, f task.Filter) ([]*task.Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if tenantID := storage.GetTenant(ctx); tenantID != "" {
		add("tenant_id = $%d", tenantID)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CapabilityName != "" {
		add("capability_name = $%d", f.CapabilityName)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = task.DefaultListLimit
	}

	query := `SELECT ` + selectColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return out, nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanTask(row pgx.Row) (*task.Task, error) {
	var (
		t       task.Task
		status  string
		argJSON []byte
		result  []byte
	)
	err := row.Scan(&t.ID, &t.TenantID, &t.CapabilityName, &argJSON, &status, &result, &t.Error, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, task.ErrNotFound
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}
	t.Status = task.Status(status)
	if len(argJSON) > 0 {
		if err := json.Unmarshal(argJSON, &t.Arguments); err != nil {
			return nil, fmt.Errorf("decoding arguments: %w", err)
		}
	}
	if result != nil {
		t.Result = json.RawMessage(result)
	}
	return &t, nil
}

func marshalArguments(args map[string]any) ([]byte, error) {
	if args == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshaling arguments: %w", err)
	}
	return b, nil
}

// nullJSON maps empty payloads to SQL NULL.
func nullJSON(b []byte) *[]byte {
	if len(b) == 0 {
		return nil
	}
	return &b
}

// isDuplicateKey reports a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
