package webserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/live"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/status"
	"github.com/vibestore237/live-competition/internal/version"
	"go.uber.org/zap"
)

// PerformanceSubmitter uploads performance audio to the competition API.
type PerformanceSubmitter interface {
	SubmitPerformance(ctx context.Context, upload competitionapi.PerformanceUpload) (*competitionapi.SubmitResult, error)
}

// NotificationHistory exposes recently delivered toasts.
type NotificationHistory interface {
	Recent() []notification.Toast
}

var (
	httpServer *http.Server

	sessionMu    sync.RWMutex
	liveSession  *live.Session
	stopForward  func()
	submitter    PerformanceSubmitter
	toastHistory NotificationHistory
	tokenSecret  []byte

	statusCallbackOnce sync.Once
)

// originAllowed reports whether a browser origin may call the API: loopback
// pages and the configured spectator site.
func originAllowed(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	if base, err := url.Parse(env.Value.SpectatorBaseURL); err == nil && base.Host != "" {
		return strings.EqualFold(base.Scheme, u.Scheme) && strings.EqualFold(base.Host, u.Host)
	}
	return false
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			if !originAllowed(origin) {
				// 外部ページからの状態変更は拒否する
				if r.Method != http.MethodGet && r.Method != http.MethodHead {
					writeJSON(w, http.StatusForbidden, map[string]string{"error": "origin not allowed"})
					return
				}
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// SetSession attaches the live session served by the API and forwards its
// snapshots to WebSocket clients. Passing nil detaches the current one.
func SetSession(s *live.Session) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if stopForward != nil {
		stopForward()
		stopForward = nil
	}
	liveSession = s
	if s == nil {
		return
	}

	updates, unsubscribe := s.Subscribe()
	stopForward = unsubscribe
	go func() {
		for snap := range updates {
			BroadcastWSMessage("session_snapshot", snap)
		}
	}()
}

func currentSession() *live.Session {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return liveSession
}

// SetPerformanceSubmitter sets the client used by the performance upload relay.
func SetPerformanceSubmitter(p PerformanceSubmitter) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	submitter = p
}

// SetNotificationHistory sets the source of /api/notifications.
func SetNotificationHistory(h NotificationHistory) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	toastHistory = h
}

// SetTokenSecret sets the HMAC key bearer tokens must be signed with. With no
// key, requests carrying a bearer token are rejected.
func SetTokenSecret(secret string) {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	tokenSecret = []byte(secret)
}

func currentTokenSecret() []byte {
	sessionMu.RLock()
	defer sessionMu.RUnlock()
	return tokenSecret
}

// BroadcastToast is a notification.Broadcaster that pushes toasts to the UI.
func BroadcastToast(toast notification.Toast) {
	BroadcastWSMessage("toast", toast)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()

	// セッション操作
	mux.HandleFunc("/api/session", corsMiddleware(handleSessionSnapshot))
	mux.HandleFunc("/api/session/start", corsMiddleware(handleSessionStart))
	mux.HandleFunc("/api/session/advance", corsMiddleware(handleSessionAdvance))
	mux.HandleFunc("/api/session/react", corsMiddleware(handleSessionReact))
	mux.HandleFunc("/api/session/chat", corsMiddleware(handleSessionChat))
	mux.HandleFunc("/api/session/vote", corsMiddleware(handleSessionVote))
	mux.HandleFunc("/api/session/permissions", corsMiddleware(handleSessionPermissions))
	mux.HandleFunc("/api/session/broadcast/start", corsMiddleware(handleBroadcastStart))
	mux.HandleFunc("/api/session/broadcast/stop", corsMiddleware(handleBroadcastStop))
	mux.HandleFunc("/api/session/listen/start", corsMiddleware(handleListenStart))
	mux.HandleFunc("/api/session/listen/stop", corsMiddleware(handleListenStop))
	mux.HandleFunc("/api/session/share.png", corsMiddleware(handleShareQRCode))
	mux.HandleFunc("/api/session/performance", corsMiddleware(handlePerformanceUpload))
	mux.HandleFunc("/api/session/events", corsMiddleware(handleSessionEvents))

	// 履歴・設定
	mux.HandleFunc("/api/chat/history", corsMiddleware(handleChatHistory))
	mux.HandleFunc("/api/settings", corsMiddleware(handleSettings))
	mux.HandleFunc("/api/settings/status", corsMiddleware(handleSettingsStatus))
	mux.HandleFunc("/api/notifications", corsMiddleware(handleNotifications))

	mux.HandleFunc("/status", corsMiddleware(handleStatus))

	RegisterWebSocketRoute(mux)
	return mux
}

func StartWebServer(port int) error {
	statusCallbackOnce.Do(func() {
		status.RegisterSignalingStatusChangeCallback(func(st status.SignalingStatus) {
			BroadcastWSMessage("signaling_status", st)
		})
	})

	host := env.Value.ServerHost
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	logger.Info("Starting web server", zap.String("address", addr))

	httpServer = &http.Server{
		Addr:         addr,
		Handler:      newMux(),
		WriteTimeout: 30 * time.Second,
		ReadTimeout:  30 * time.Second, // 音源アップロード用に長め
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
		// Server started successfully
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	SetSession(nil)
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}

// handleStatus returns the current system status
func handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"signaling": status.Signaling(),
		"clients":   ClientCount(),
		"version":   version.Get(),
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if s := currentSession(); s != nil {
		response["competition_id"] = s.CompetitionID()
		response["demo"] = s.Demo()
	}
	writeJSON(w, http.StatusOK, response)
}

func handleNotifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionMu.RLock()
	history := toastHistory
	sessionMu.RUnlock()

	toasts := []notification.Toast{}
	if history != nil {
		toasts = history.Recent()
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": toasts, "count": len(toasts)})
}
