package webserver

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/skip2/go-qrcode"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	defaultQRSize = 256
	maxQRSize     = 1024

	// 音源アップロードの上限
	maxPerformanceBytes = 32 << 20
)

// handleShareQRCode handles GET /api/session/share.png
// 観戦ページ URL の QR コードを PNG で返す
func handleShareQRCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := requireSession(w)
	if s == nil {
		return
	}

	size := defaultQRSize
	if sizeStr := r.URL.Query().Get("size"); sizeStr != "" {
		if parsed, err := strconv.Atoi(sizeStr); err == nil && parsed > 0 && parsed <= maxQRSize {
			size = parsed
		}
	}

	url := env.Value.SpectatorURL(s.CompetitionID())
	png, err := qrcode.Encode(url, qrcode.Medium, size)
	if err != nil {
		logger.Error("Failed to encode share QR code", zap.String("url", url), zap.Error(err))
		http.Error(w, "Failed to generate QR code", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Spectator-URL", url)
	if _, err := w.Write(png); err != nil {
		logger.Debug("Failed to write QR code", zap.Error(err))
	}
}

// handlePerformanceUpload handles POST /api/session/performance
// multipart の "audio" ファイルを大会 API へ中継する
func handlePerformanceUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s := requireSession(w)
	if s == nil {
		return
	}

	sessionMu.RLock()
	relay := submitter
	sessionMu.RUnlock()
	if relay == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "performance upload is not configured"})
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPerformanceBytes)
	if err := r.ParseMultipartForm(maxPerformanceBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read audio file"})
		return
	}
	if len(data) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "audio file is empty"})
		return
	}

	result, err := relay.SubmitPerformance(r.Context(), competitionapi.PerformanceUpload{
		CompetitionID: s.CompetitionID(),
		Title:         r.FormValue("title"),
		Artist:        r.FormValue("artist"),
		FileName:      header.Filename,
		Audio:         bytes.NewReader(data),
	})
	if err != nil {
		logger.Warn("Performance upload failed",
			zap.String("file", header.Filename),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	logger.Info("Performance uploaded",
		zap.String("id", result.ID),
		zap.String("title", result.Title),
		zap.Int("bytes", len(data)))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "performance": result})
}
