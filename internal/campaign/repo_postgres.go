package campaign

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo persists campaigns in a campaigns table.
//
// NOTE: This repository assumes the following table exists:
//
//	CREATE TABLE campaigns (
//	  id                     TEXT PRIMARY KEY,
//	  workspace_id           TEXT NOT NULL,
//	  name                   TEXT NOT NULL,
//	  status                 TEXT NOT NULL,
//	  auto_engage            BOOLEAN NOT NULL DEFAULT FALSE,
//	  gateway_session        TEXT NOT NULL DEFAULT '',
//	  max_leads_per_day      INT NOT NULL DEFAULT 0,
//	  batch_size             INT NOT NULL DEFAULT 0,
//	  delay_between_leads_ms INT NOT NULL DEFAULT 0,
//	  graph                  JSONB NOT NULL,
//	  created_at             TIMESTAMPTZ NOT NULL,
//	  updated_at             TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const campaignColumns = `
id, workspace_id, name, status, auto_engage, gateway_session,
max_leads_per_day, batch_size, delay_between_leads_ms, graph,
created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Campaign, error) {
	q := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`
	return scanCampaign(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) List(ctx context.Context, workspaceID string) ([]Campaign, error) {
	q := `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE workspace_id = $1
ORDER BY created_at ASC
`
	return r.queryMany(ctx, q, workspaceID)
}

func (r *PostgresRepo) ListActiveAutoEngage(ctx context.Context) ([]Campaign, error) {
	q := `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE status = $1 AND auto_engage
ORDER BY created_at ASC
`
	return r.queryMany(ctx, q, StatusActive)
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status Status) error {
	const q = `UPDATE campaigns SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, status, r.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) queryMany(ctx context.Context, q string, args ...any) ([]Campaign, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (Campaign, error) {
	var c Campaign
	var graph string

	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.Status, &c.AutoEngage, &c.GatewaySession,
		&c.MaxLeadsPerDay, &c.BatchSize, &c.DelayBetweenLeads, &graph,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Campaign{}, ErrNotFound
		}
		return Campaign{}, err
	}

	if err := json.Unmarshal([]byte(graph), &c.Graph); err != nil {
		return Campaign{}, fmt.Errorf("campaign %s: bad graph: %w", c.ID, err)
	}
	return c, nil
}
