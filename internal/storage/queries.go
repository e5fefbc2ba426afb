package storage

import (
	"context"
	"database/sql"
)

const insertEvent = `
INSERT INTO events (event_type, customer_id, amount, description, occurred_at)
VALUES (?, ?, ?, ?, ?)
`

type InsertEventParams struct {
	EventType   string
	CustomerID  sql.NullInt64
	Amount      sql.NullFloat64
	Description sql.NullString
	OccurredAt  string
}

func (q *Queries) InsertEvent(ctx context.Context, arg InsertEventParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertEvent,
		arg.EventType,
		arg.CustomerID,
		arg.Amount,
		arg.Description,
		arg.OccurredAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const listEvents = `
SELECT id, event_type, customer_id, amount, description, occurred_at
FROM events
ORDER BY id
`

func (q *Queries) ListEvents(ctx context.Context) ([]EventRow, error) {
	rows, err := q.db.QueryContext(ctx, listEvents)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []EventRow{}
	for rows.Next() {
		var i EventRow
		if err := rows.Scan(
			&i.ID,
			&i.EventType,
			&i.CustomerID,
			&i.Amount,
			&i.Description,
			&i.OccurredAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertCohortSQLite = `
INSERT INTO retention_cohorts (month, acquired, active_json, updated_at)
VALUES (?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(month) DO UPDATE SET
    acquired = excluded.acquired,
    active_json = excluded.active_json,
    updated_at = CURRENT_TIMESTAMP
`

const upsertCohortMySQL = `
INSERT INTO retention_cohorts (month, acquired, active_json)
VALUES (?, ?, ?)
ON DUPLICATE KEY UPDATE
    acquired = VALUES(acquired),
    active_json = VALUES(active_json)
`

func (q *Queries) UpsertCohort(ctx context.Context, arg CohortRow) error {
	query := upsertCohortSQLite
	if q.dialect == DialectMySQL {
		query = upsertCohortMySQL
	}
	_, err := q.db.ExecContext(ctx, query, arg.Month, arg.Acquired, arg.ActiveJSON)
	return err
}

const listCohorts = `
SELECT month, acquired, active_json
FROM retention_cohorts
ORDER BY month
`

func (q *Queries) ListCohorts(ctx context.Context) ([]CohortRow, error) {
	rows, err := q.db.QueryContext(ctx, listCohorts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CohortRow{}
	for rows.Next() {
		var i CohortRow
		if err := rows.Scan(&i.Month, &i.Acquired, &i.ActiveJSON); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const bumpRevision = `
UPDATE dataset_revision SET revision = revision + 1 WHERE id = 1
`

func (q *Queries) BumpRevision(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, bumpRevision)
	return err
}

const getRevision = `
SELECT revision FROM dataset_revision WHERE id = 1
`

func (q *Queries) GetRevision(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getRevision)
	var revision int64
	err := row.Scan(&revision)
	return revision, err
}
