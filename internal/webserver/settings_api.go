package webserver

import (
	"encoding/json"
	"net/http"
	"sort"

	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/settings"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

func settingsManager(w http.ResponseWriter) *settings.SettingsManager {
	db := localdb.GetDB()
	if db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database not initialized"})
		return nil
	}
	return settings.NewSettingsManager(db)
}

// handleSettings handles GET/POST/PUT /api/settings
func handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		getSettings(w)
	case http.MethodPost, http.MethodPut:
		updateSettings(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func getSettings(w http.ResponseWriter) {
	sm := settingsManager(w)
	if sm == nil {
		return
	}
	all, err := sm.GetAllSettings()
	if err != nil {
		logger.Error("Failed to get settings", zap.Error(err))
		http.Error(w, "Failed to fetch settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"settings": all})
}

// updateSettings は全項目を検証してから保存する。1件でも不正なら何も保存しない。
func updateSettings(w http.ResponseWriter, r *http.Request) {
	sm := settingsManager(w)
	if sm == nil {
		return
	}

	var updates map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&updates); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(updates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no settings given"})
		return
	}

	keys := make([]string, 0, len(updates))
	for key := range updates {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	invalid := map[string]string{}
	for _, key := range keys {
		if _, known := settings.DefaultSettings[key]; !known {
			invalid[key] = "unknown setting"
			continue
		}
		if err := settings.ValidateSetting(key, updates[key]); err != nil {
			invalid[key] = err.Error()
		}
	}
	if len(invalid) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid settings", "fields": invalid})
		return
	}

	for _, key := range keys {
		if err := sm.SetSetting(key, updates[key]); err != nil {
			logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
			http.Error(w, "Failed to save settings", http.StatusInternalServerError)
			return
		}
	}

	if err := env.ReloadFromDatabase(); err != nil {
		logger.Warn("Failed to reload configuration", zap.Error(err))
	}
	logger.Info("Settings updated", zap.Strings("keys", keys))
	BroadcastWSMessage("settings_updated", map[string]any{"keys": keys})

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": keys})
}

// handleSettingsStatus handles GET /api/settings/status
func handleSettingsStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sm := settingsManager(w)
	if sm == nil {
		return
	}
	featureStatus, err := sm.CheckFeatureStatus()
	if err != nil {
		logger.Error("Failed to check feature status", zap.Error(err))
		http.Error(w, "Failed to check status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, featureStatus)
}
