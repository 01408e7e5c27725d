package lead

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"outreach-platform/pkg/utils"
)

// PostgresRepo persists leads in a leads table.
//
// NOTE: This repository assumes the following table exists:
//
//	CREATE TABLE leads (
//	  id                   TEXT PRIMARY KEY,
//	  workspace_id         TEXT NOT NULL,
//	  campaign_id          TEXT NOT NULL,
//	  phone                TEXT NOT NULL,
//	  name                 TEXT NOT NULL DEFAULT '',
//	  status               TEXT NOT NULL,
//	  current_node_id      TEXT NOT NULL DEFAULT '',
//	  node_state           JSONB,
//	  last_user_message_at TIMESTAMPTZ,
//	  last_error           TEXT NOT NULL DEFAULT '',
//	  created_at           TIMESTAMPTZ NOT NULL,
//	  updated_at           TIMESTAMPTZ NOT NULL,
//	  UNIQUE (campaign_id, phone)
//	);
type PostgresRepo struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const leadColumns = `
id, workspace_id, campaign_id, phone, name, status, current_node_id,
node_state, last_user_message_at, last_error, created_at, updated_at`

func (r *PostgresRepo) Get(ctx context.Context, id string) (Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	return scanLead(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByPhone(ctx context.Context, campaignID, phone string) (Lead, error) {
	q := `SELECT ` + leadColumns + ` FROM leads WHERE campaign_id = $1 AND phone = $2`
	return scanLead(r.db.QueryRowContext(ctx, q, campaignID, phone))
}

func (r *PostgresRepo) FindActiveByPhone(ctx context.Context, phone string) (Lead, error) {
	placeholders := make([]string, len(EngagedStatuses))
	args := []any{phone}
	for i, s := range EngagedStatuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, s)
	}

	q := `
SELECT ` + leadColumns + `
FROM leads
WHERE phone = $1 AND status IN (` + strings.Join(placeholders, ", ") + `)
ORDER BY created_at ASC
LIMIT 1`
	return scanLead(r.db.QueryRowContext(ctx, q, args...))
}

func (r *PostgresRepo) Create(ctx context.Context, l Lead) error {
	now := r.clock().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = now
	}

	state, err := marshalNodeState(l.NodeState)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO leads (
  id, workspace_id, campaign_id, phone, name, status, current_node_id,
  node_state, last_user_message_at, last_error, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`
	_, err = r.db.ExecContext(ctx, q,
		l.ID, l.WorkspaceID, l.CampaignID, l.Phone, l.Name, l.Status,
		l.CurrentNodeID, state, l.LastUserMessageAt, l.LastError,
		l.CreatedAt, l.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, l Lead) error {
	state, err := marshalNodeState(l.NodeState)
	if err != nil {
		return err
	}

	const q = `
UPDATE leads SET
  status = $2,
  current_node_id = $3,
  node_state = $4,
  last_user_message_at = $5,
  last_error = $6,
  updated_at = $7
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q,
		l.ID, l.Status, l.CurrentNodeID, state, l.LastUserMessageAt,
		l.LastError, r.clock().UTC(),
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresRepo) UpdateStatusFrom(ctx context.Context, id string, from, to Status) error {
	// The flip and the miss diagnosis run in one transaction so the
	// conflict verdict reflects the same snapshot the update saw.
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
UPDATE leads SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`
		res, err := tx.ExecContext(ctx, q, id, from, to, r.clock().UTC())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Either missing or already claimed; distinguish for callers.
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrStatusConflict
		}
		return nil
	})
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, campaignID string, status Status, limit int) ([]Lead, error) {
	q := `
SELECT ` + leadColumns + `
FROM leads
WHERE campaign_id = $1 AND status = $2
ORDER BY created_at ASC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, q, campaignID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListByCampaign(ctx context.Context, campaignID string, limit int) ([]Lead, error) {
	q := `
SELECT ` + leadColumns + `
FROM leads
WHERE campaign_id = $1
ORDER BY created_at ASC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountUpdatedSince(ctx context.Context, campaignID string, statuses []Status, since time.Time) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(statuses))
	args := []any{campaignID, since}
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+3)
		args = append(args, s)
	}

	q := `
SELECT COUNT(*) FROM leads
WHERE campaign_id = $1 AND updated_at >= $2 AND status IN (` + strings.Join(placeholders, ", ") + `)`

	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (Lead, error) {
	var l Lead
	var state sql.NullString
	var lastMsg sql.NullTime

	err := row.Scan(
		&l.ID, &l.WorkspaceID, &l.CampaignID, &l.Phone, &l.Name, &l.Status,
		&l.CurrentNodeID, &state, &lastMsg, &l.LastError, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}

	if state.Valid && state.String != "" {
		var ns NodeState
		if err := json.Unmarshal([]byte(state.String), &ns); err != nil {
			return Lead{}, fmt.Errorf("lead %s: bad node_state: %w", l.ID, err)
		}
		l.NodeState = &ns
	}
	if lastMsg.Valid {
		t := lastMsg.Time
		l.LastUserMessageAt = &t
	}
	return l, nil
}

func marshalNodeState(ns *NodeState) (any, error) {
	if ns == nil {
		return nil, nil
	}
	b, err := json.Marshal(ns)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
