package storage

import (
	"database/sql"
)

type EventRow struct {
	ID          int64
	EventType   string
	CustomerID  sql.NullInt64
	Amount      sql.NullFloat64
	Description sql.NullString
	OccurredAt  string
}

type CohortRow struct {
	Month      string
	Acquired   int64
	ActiveJSON string
}
