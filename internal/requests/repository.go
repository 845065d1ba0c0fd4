package requests

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pingboard/pingboard/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository persists monitored requests and samples in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository wrapper.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetRequest loads a monitored request by id.
func (r *Repository) GetRequest(ctx context.Context, id int64) (MonitoredRequest, error) {
	if r == nil || r.pool == nil {
		return MonitoredRequest{}, fmt.Errorf("requests: repository not initialised")
	}
	const query = `SELECT id, name, url, method, is_active, created_at
FROM monitored_requests WHERE id = $1`
	req, err := scanRequest(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MonitoredRequest{}, ErrNotFound
		}
		return MonitoredRequest{}, err
	}
	return req, nil
}

// ListRequests returns monitored requests ordered by name.
func (r *Repository) ListRequests(ctx context.Context, filter ListFilter) ([]MonitoredRequest, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("requests: repository not initialised")
	}
	const query = `SELECT id, name, url, method, is_active, created_at
FROM monitored_requests
WHERE (NOT $1 OR is_active)
ORDER BY name`
	rows, err := r.pool.Query(ctx, query, filter.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonitoredRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// CreateRequest registers a monitored request.
func (r *Repository) CreateRequest(ctx context.Context, in RequestInput) (MonitoredRequest, error) {
	if r == nil || r.pool == nil {
		return MonitoredRequest{}, fmt.Errorf("requests: repository not initialised")
	}
	const insert = `INSERT INTO monitored_requests (name, url, method)
VALUES ($1, $2, $3)
RETURNING id, name, url, method, is_active, created_at`
	req, err := scanRequest(r.pool.QueryRow(ctx, insert, in.Name, in.URL, in.Method))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return MonitoredRequest{}, fmt.Errorf("%w: name %q", ErrDuplicated, in.Name)
		}
		return MonitoredRequest{}, err
	}
	return req, nil
}

// RecentSamples returns up to limit samples, newest first.
func (r *Repository) RecentSamples(ctx context.Context, requestID int64, limit int) ([]Sample, error) {
	if r == nil || r.pool == nil {
		return nil, fmt.Errorf("requests: repository not initialised")
	}
	const query = `SELECT id, request_id, response_ms, status_code, error, observed_at
FROM request_samples
WHERE request_id = $1
ORDER BY observed_at DESC
LIMIT $2`
	rows, err := r.pool.Query(ctx, query, requestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Sample
	for rows.Next() {
		var s Sample
		var status sql.NullInt32
		var errMsg sql.NullString
		if err := rows.Scan(&s.ID, &s.RequestID, &s.ResponseMS, &status, &errMsg, &s.ObservedAt); err != nil {
			return nil, err
		}
		s.StatusCode = int(status.Int32)
		s.Error = errMsg.String
		out = append(out, s)
	}
	return out, rows.Err()
}

// InsertSample stores a sample and touches its request in one transaction.
func (r *Repository) InsertSample(ctx context.Context, s Sample) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("requests: repository not initialised")
	}
	var status any
	if s.StatusCode != 0 {
		status = s.StatusCode
	}
	var errMsg any
	if s.Error != "" {
		errMsg = s.Error
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE monitored_requests SET updated_at = $2 WHERE id = $1`, s.RequestID, s.ObservedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		const insert = `INSERT INTO request_samples (id, request_id, response_ms, status_code, error, observed_at)
VALUES ($1, $2, $3, $4, $5, $6)`
		_, err = tx.Exec(ctx, insert, s.ID, s.RequestID, s.ResponseMS, status, errMsg, s.ObservedAt)
		return err
	})
}

func scanRequest(row interface{ Scan(dest ...any) error }) (MonitoredRequest, error) {
	var req MonitoredRequest
	if err := row.Scan(&req.ID, &req.Name, &req.URL, &req.Method, &req.Active, &req.CreatedAt); err != nil {
		return MonitoredRequest{}, err
	}
	return req, nil
}
