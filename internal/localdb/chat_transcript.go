package localdb

import (
	"database/sql"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

type ChatTranscriptRow struct {
	ID            int64
	CompetitionID string
	MessageID     string
	Author        string
	Body          string
	IsSystem      bool
	IsWinner      bool
	CreatedAt     int64 // unix millis
}

// SetupChatTranscriptTable creates the chat_transcript table.
func SetupChatTranscriptTable(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS chat_transcript (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		competition_id TEXT NOT NULL,
		message_id TEXT,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		is_system BOOLEAN NOT NULL DEFAULT false,
		is_winner BOOLEAN NOT NULL DEFAULT false,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		logger.Error("Failed to create chat_transcript table", zap.Error(err))
		return err
	}

	if _, err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_chat_transcript_message_id ON chat_transcript(message_id) WHERE message_id IS NOT NULL AND message_id != ''`); err != nil {
		logger.Warn("Failed to create chat_transcript message_id index", zap.Error(err))
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_chat_transcript_competition ON chat_transcript(competition_id, id)`); err != nil {
		logger.Warn("Failed to create chat_transcript index", zap.Error(err))
	}
	return nil
}

// AddChatTranscript inserts a chat message.
// Returns true if inserted, false if ignored due to duplicate message_id.
func AddChatTranscript(row ChatTranscriptRow) (bool, error) {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return false, sql.ErrConnDone
	}

	if row.CreatedAt == 0 {
		row.CreatedAt = time.Now().UnixMilli()
	}

	result, err := db.Exec(`
	INSERT OR IGNORE INTO chat_transcript (competition_id, message_id, author, body, is_system, is_winner, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		row.CompetitionID,
		row.MessageID,
		row.Author,
		row.Body,
		row.IsSystem,
		row.IsWinner,
		row.CreatedAt,
	)
	if err != nil {
		logger.Error("Failed to insert chat transcript", zap.Error(err))
		return false, err
	}

	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected == 0 {
		return false, nil
	}
	return true, nil
}

// GetChatTranscript returns the newest limit messages in receipt order.
func GetChatTranscript(competitionID string, limit int) ([]ChatTranscriptRow, error) {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return nil, sql.ErrConnDone
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := db.Query(`
	SELECT id, competition_id, message_id, author, body, is_system, is_winner, created_at
	FROM (
		SELECT * FROM chat_transcript WHERE competition_id = ? ORDER BY id DESC LIMIT ?
	)
	ORDER BY id ASC
	`, competitionID, limit)
	if err != nil {
		logger.Error("Failed to query chat transcript", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	messages := []ChatTranscriptRow{}
	for rows.Next() {
		var row ChatTranscriptRow
		if err := rows.Scan(
			&row.ID,
			&row.CompetitionID,
			&row.MessageID,
			&row.Author,
			&row.Body,
			&row.IsSystem,
			&row.IsWinner,
			&row.CreatedAt,
		); err != nil {
			logger.Error("Failed to scan chat transcript", zap.Error(err))
			continue
		}
		messages = append(messages, row)
	}
	if err := rows.Err(); err != nil {
		logger.Error("Error iterating chat transcript", zap.Error(err))
		return nil, err
	}
	return messages, nil
}

// CleanupChatTranscriptBefore deletes messages older than the cutoff (unix millis).
func CleanupChatTranscriptBefore(cutoffMillis int64) error {
	db := GetDB()
	if db == nil {
		logger.Error("Database not initialized")
		return sql.ErrConnDone
	}

	result, err := db.Exec(`DELETE FROM chat_transcript WHERE created_at < ?`, cutoffMillis)
	if err != nil {
		logger.Error("Failed to cleanup chat transcript", zap.Error(err))
		return err
	}
	if rowsAffected, err := result.RowsAffected(); err == nil && rowsAffected > 0 {
		logger.Debug("Cleaned up old chat transcript", zap.Int64("deleted", rowsAffected))
	}
	return nil
}
