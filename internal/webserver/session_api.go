package webserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/live"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/scoring"
	"github.com/vibestore237/live-competition/internal/session"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/types"
	"go.uber.org/zap"
)

type reactRequest struct {
	ParticipantID string             `json:"participant_id"`
	Kind          types.ReactionKind `json:"kind"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type voteRequest struct {
	ParticipantID string `json:"participant_id"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps session errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError

	var notAuthorized *session.NotAuthorizedError
	var permission *audio.PermissionError
	var invalid *session.InvalidStateError
	var media *audio.MediaError
	var network *competitionapi.NetworkError
	switch {
	case errors.As(err, &notAuthorized), errors.As(err, &permission):
		code = http.StatusForbidden
	case errors.As(err, &invalid), errors.Is(err, live.ErrAlreadyVoted):
		code = http.StatusConflict
	case errors.Is(err, live.ErrUnknownParticipant):
		code = http.StatusNotFound
	case errors.Is(err, live.ErrEmptyMessage), errors.Is(err, scoring.ErrUnknownReaction):
		code = http.StatusBadRequest
	case errors.As(err, &network):
		code = http.StatusBadGateway
	case errors.As(err, &media), errors.Is(err, live.ErrSessionClosed):
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// requireSession writes 503 when no session is attached.
func requireSession(w http.ResponseWriter) *live.Session {
	s := currentSession()
	if s == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no live session"})
	}
	return s
}

// requestIdentity は Authorization ヘッダのトークンから利用者を決める。
// トークンは設定済みの鍵で署名検証する。ヘッダが無ければセッションを開いた
// ローカルユーザーとして扱う。
func requestIdentity(r *http.Request, s *live.Session) (types.Identity, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return s.Identity(), nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return types.Identity{}, errors.New("invalid authorization header")
	}
	return competitionapi.VerifyIdentityToken(strings.TrimSpace(token), currentTokenSecret())
}

// sessionCommand resolves the session and caller for a POST command.
func sessionCommand(w http.ResponseWriter, r *http.Request) (*live.Session, types.Identity, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return nil, types.Identity{}, false
	}
	s := requireSession(w)
	if s == nil {
		return nil, types.Identity{}, false
	}
	identity, err := requestIdentity(r, s)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return nil, types.Identity{}, false
	}
	return s, identity, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// handleSessionSnapshot handles GET /api/session
func handleSessionSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := requireSession(w)
	if s == nil {
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// handleSessionStart handles POST /api/session/start
func handleSessionStart(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	if err := s.Start(r.Context(), identity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSessionAdvance handles POST /api/session/advance
func handleSessionAdvance(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	performer, err := s.AdvanceParticipant(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"performer": performer,
		"finished":  performer == nil,
	})
}

// handleSessionReact handles POST /api/session/react
func handleSessionReact(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	var req reactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	tally, err := s.React(r.Context(), identity, req.ParticipantID, req.Kind)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"tally":   tally,
		"score":   scoring.Score(tally),
	})
}

// handleSessionChat handles POST /api/session/chat
func handleSessionChat(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := s.PostChat(r.Context(), identity, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": msg})
}

// handleSessionVote handles POST /api/session/vote
func handleSessionVote(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	var req voteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.Vote(r.Context(), identity, req.ParticipantID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSessionPermissions handles GET /api/session/permissions
func handleSessionPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := requireSession(w)
	if s == nil {
		return
	}
	identity, err := requestIdentity(r, s)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    identity.UserID,
		"role":       identity.Role,
		"permission": s.CheckBroadcastPermissions(identity),
	})
}

func handleBroadcastStart(w http.ResponseWriter, r *http.Request) {
	s, identity, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	if err := s.StartBroadcast(r.Context(), identity); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "audio": s.Snapshot().Audio})
}

func handleBroadcastStop(w http.ResponseWriter, r *http.Request) {
	s, _, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	s.StopBroadcast()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func handleListenStart(w http.ResponseWriter, r *http.Request) {
	s, _, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	s.StartListening()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func handleListenStop(w http.ResponseWriter, r *http.Request) {
	s, _, ok := sessionCommand(w, r)
	if !ok {
		return
	}
	s.StopListening()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSessionEvents handles GET /api/session/events
func handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := requireSession(w)
	if s == nil {
		return
	}

	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	rows, err := localdb.GetSessionEvents(s.CompetitionID(), limit)
	if err != nil {
		logger.Error("Failed to get session events", zap.Error(err))
		http.Error(w, "Failed to fetch session events", http.StatusInternalServerError)
		return
	}

	events := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		events = append(events, map[string]any{
			"id":         row.ID,
			"name":       row.Name,
			"payload":    json.RawMessage(row.PayloadJSON),
			"created_at": row.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
