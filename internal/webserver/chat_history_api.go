package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

type chatHistoryMessage struct {
	ID        int64  `json:"id"`
	MessageID string `json:"messageId,omitempty"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	IsSystem  bool   `json:"isSystem,omitempty"`
	IsWinner  bool   `json:"isWinner,omitempty"`
	Timestamp string `json:"timestamp"`
}

// handleChatHistory handles GET /api/chat/history
func handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	competitionID := r.URL.Query().Get("competition")
	if competitionID == "" {
		if s := currentSession(); s != nil {
			competitionID = s.CompetitionID()
		}
	}
	if competitionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "competition is required"})
		return
	}

	days := 7
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		if parsed, err := strconv.Atoi(daysStr); err == nil && parsed > 0 {
			days = parsed
		}
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	if err := localdb.CleanupChatTranscriptBefore(cutoff); err != nil {
		logger.Warn("Failed to cleanup chat history", zap.Error(err))
	}

	rows, err := localdb.GetChatTranscript(competitionID, limit)
	if err != nil {
		logger.Error("Failed to get chat history", zap.Error(err))
		http.Error(w, "Failed to fetch chat history", http.StatusInternalServerError)
		return
	}

	messages := make([]chatHistoryMessage, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, chatHistoryMessage{
			ID:        row.ID,
			MessageID: row.MessageID,
			Author:    row.Author,
			Message:   row.Body,
			IsSystem:  row.IsSystem,
			IsWinner:  row.IsWinner,
			Timestamp: time.UnixMilli(row.CreatedAt).Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"competition_id": competitionID,
		"messages":       messages,
		"count":          len(messages),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}
