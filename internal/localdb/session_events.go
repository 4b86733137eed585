package localdb

import (
	"database/sql"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

type SessionEventRow struct {
	ID            int64
	CompetitionID string
	Name          string
	PayloadJSON   string
	CreatedAt     int64 // unix millis
}

// SetupSessionEventsTable creates the session_events journal table.
func SetupSessionEventsTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		competition_id TEXT NOT NULL,
		name TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		logger.Error("Failed to create session_events table", zap.Error(err))
		return err
	}

	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_session_events_competition ON session_events(competition_id, id)`); err != nil {
		logger.Warn("Failed to create session_events index", zap.Error(err))
	}
	return nil
}

// AppendSessionEvent は適用済みのイベントをジャーナルに追記する
func AppendSessionEvent(row SessionEventRow) error {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return sql.ErrConnDone
	}

	if row.CreatedAt == 0 {
		row.CreatedAt = time.Now().UnixMilli()
	}
	if row.PayloadJSON == "" {
		row.PayloadJSON = "{}"
	}

	_, err := db.Exec(
		`INSERT INTO session_events (competition_id, name, payload_json, created_at) VALUES (?, ?, ?, ?)`,
		row.CompetitionID, row.Name, row.PayloadJSON, row.CreatedAt,
	)
	if err != nil {
		logger.Error("Failed to append session event", zap.Error(err), zap.String("name", row.Name))
		return err
	}
	return nil
}

// GetSessionEvents returns the journal of a competition in append order.
func GetSessionEvents(competitionID string, limit int) ([]SessionEventRow, error) {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return nil, sql.ErrConnDone
	}

	query := `
	SELECT id, competition_id, name, payload_json, created_at
	FROM session_events
	WHERE competition_id = ?
	ORDER BY id ASC
	`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = db.Query(query+" LIMIT ?", competitionID, limit)
	} else {
		rows, err = db.Query(query, competitionID)
	}
	if err != nil {
		logger.Error("Failed to query session events", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	events := []SessionEventRow{}
	for rows.Next() {
		var row SessionEventRow
		if err := rows.Scan(&row.ID, &row.CompetitionID, &row.Name, &row.PayloadJSON, &row.CreatedAt); err != nil {
			logger.Error("Failed to scan session event", zap.Error(err))
			continue
		}
		events = append(events, row)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Error iterating session events", zap.Error(err))
		return nil, err
	}
	return events, nil
}
