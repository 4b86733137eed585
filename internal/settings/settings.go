package settings

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal SettingType = "normal"
	SettingTypeSecret SettingType = "secret"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"` // シークレット値が設定されているかどうか
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// 大会API設定
	"API_BASE_URL": {
		Key: "API_BASE_URL", Value: "http://localhost:8080", Type: SettingTypeNormal, Required: true,
		Description: "Competition REST API base URL",
	},
	"API_TOKEN": {
		Key: "API_TOKEN", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "Bearer token issued by the auth layer",
	},
	"COMPETITION_ID": {
		Key: "COMPETITION_ID", Value: "", Type: SettingTypeNormal, Required: true,
		Description: "Competition to open",
	},

	// シグナリング設定
	"SIGNALING_HOST": {
		Key: "SIGNALING_HOST", Value: "localhost", Type: SettingTypeNormal, Required: false,
		Description: "Signaling server host[:port]",
	},
	"WEBSOCKET_PORT": {
		Key: "WEBSOCKET_PORT", Value: "8080", Type: SettingTypeNormal, Required: false,
		Description: "Signaling server port when SIGNALING_HOST has none",
	},
	"SIGNALING_SECURE": {
		Key: "SIGNALING_SECURE", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Use wss:// for the signaling server",
	},
	"WEBSOCKET_DISABLED_DEV": {
		Key: "WEBSOCKET_DISABLED_DEV", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Disable live signaling in development",
	},
	"WEBSOCKET_DISABLED_PROD": {
		Key: "WEBSOCKET_DISABLED_PROD", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Disable live signaling in production",
	},
	"DEMO_MODE": {
		Key: "DEMO_MODE", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Run with simulated signaling and optimistic updates",
	},
	"ICE_SERVERS": {
		Key: "ICE_SERVERS", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Comma separated STUN/TURN URLs",
	},

	// 配信設定
	"PERFORMANCE_SECONDS": {
		Key: "PERFORMANCE_SECONDS", Value: "180", Type: SettingTypeNormal, Required: false,
		Description: "Performance timer length in seconds",
	},
	"DEMO_PERFORMANCE_SECONDS": {
		Key: "DEMO_PERFORMANCE_SECONDS", Value: "60", Type: SettingTypeNormal, Required: false,
		Description: "Performance timer length in demo mode",
	},
	"MEDIA_FILE": {
		Key: "MEDIA_FILE", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "Ogg/Opus file used as the broadcast audio source",
	},

	// サーバー設定
	"SERVER_HOST": {
		Key: "SERVER_HOST", Value: "127.0.0.1", Type: SettingTypeNormal, Required: false,
		Description: "Local UI server bind address",
	},
	"TOKEN_SECRET": {
		Key: "TOKEN_SECRET", Value: "", Type: SettingTypeSecret, Required: false,
		Description: "HMAC key used to verify bearer tokens on the local API",
	},
	"SERVER_PORT": {
		Key: "SERVER_PORT", Value: "8090", Type: SettingTypeNormal, Required: false,
		Description: "Local UI server port",
	},
	"SPECTATOR_BASE_URL": {
		Key: "SPECTATOR_BASE_URL", Value: "http://localhost:5173", Type: SettingTypeNormal, Required: false,
		Description: "Base URL of the spectator page used for share links",
	},
	"TIMEZONE": {
		Key: "TIMEZONE", Value: "Africa/Douala", Type: SettingTypeNormal, Required: false,
		Description: "Timezone of the competition schedule",
	},
	"DEBUG_OUTPUT": {
		Key: "DEBUG_OUTPUT", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable debug output",
	},

	// 通知設定
	"NOTIFICATION_DISPLAY_DURATION": {
		Key: "NOTIFICATION_DISPLAY_DURATION", Value: "5", Type: SettingTypeNormal, Required: false,
		Description: "Notification display duration in seconds",
	},
}

// 機能の有効性チェック
type FeatureStatus struct {
	APIConfigured       bool     `json:"api_configured"`
	SignalingConfigured bool     `json:"signaling_configured"`
	DemoMode            bool     `json:"demo_mode"`
	MissingSettings     []string `json:"missing_settings"`
	Warnings            []string `json:"warnings"`
}

func (sm *SettingsManager) CheckFeatureStatus() (*FeatureStatus, error) {
	status := &FeatureStatus{
		MissingSettings: []string{},
		Warnings:        []string{},
	}

	apiComplete := true
	for _, key := range []string{"API_BASE_URL", "COMPETITION_ID"} {
		if val, err := sm.GetSetting(key); err != nil || val == "" {
			status.MissingSettings = append(status.MissingSettings, key)
			apiComplete = false
		}
	}
	status.APIConfigured = apiComplete

	if host, err := sm.GetSetting("SIGNALING_HOST"); err == nil && host != "" {
		status.SignalingConfigured = true
	}

	if token, _ := sm.GetRealValue("API_TOKEN"); token == "" {
		status.Warnings = append(status.Warnings, "API_TOKEN is empty - requests will be anonymous")
	}
	if demo, _ := sm.GetSetting("DEMO_MODE"); demo == "true" {
		status.DemoMode = true
		status.Warnings = append(status.Warnings, "DEMO_MODE is enabled - signaling is simulated")
	}

	return status, nil
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	// デフォルト設定が存在するかチェック
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return fmt.Errorf("unknown setting key: %s", key)
	}
	if err := ValidateSetting(key, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		s.HasValue = s.Value != ""

		// シークレットは値を返さない
		if s.Type == SettingTypeSecret {
			s.Value = ""
		}
		settings[s.Key] = s
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 実際の値を取得（マスクなし）- 内部処理用
func (sm *SettingsManager) GetRealValue(key string) (string, error) {
	return sm.GetSetting(key)
}

// Overrides returns the values explicitly stored in the database.
func (sm *SettingsManager) Overrides() (map[string]string, error) {
	rows, err := sm.db.Query(`SELECT key, value FROM settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, rows.Err()
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	migrated := 0

	for key := range DefaultSettings {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		// 環境変数から取得
		if envValue := os.Getenv(key); envValue != "" {
			if err := sm.SetSetting(key, envValue); err != nil {
				logger.Error("Failed to migrate setting", zap.String("key", key), zap.Error(err))
				return fmt.Errorf("failed to migrate %s: %w", key, err)
			}
			logger.Info("Migrated setting from environment", zap.String("key", key))
			migrated++
		}
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))
		if os.Getenv("API_TOKEN") != "" {
			logger.Warn("SECURITY WARNING: API_TOKEN found in environment variables.")
		}
	}

	return nil
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "API_BASE_URL", "SPECTATOR_BASE_URL":
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("must be an http(s) URL")
		}
	case "SERVER_HOST":
		if value == "" || strings.ContainsAny(value, ":/ ") {
			return fmt.Errorf("must be a host name or IPv4 address without port")
		}
	case "SIGNALING_HOST":
		if strings.Contains(value, "://") || strings.Contains(value, "/") {
			return fmt.Errorf("must be host[:port] without scheme or path")
		}
	case "SERVER_PORT", "WEBSOCKET_PORT":
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 65535 {
			return fmt.Errorf("must be integer between 1 and 65535")
		}
	case "PERFORMANCE_SECONDS", "DEMO_PERFORMANCE_SECONDS":
		if val, err := strconv.Atoi(value); err != nil || val < 10 || val > 3600 {
			return fmt.Errorf("must be integer between 10 and 3600 seconds")
		}
	case "ICE_SERVERS":
		for _, server := range strings.Split(value, ",") {
			server = strings.TrimSpace(server)
			if server == "" {
				continue
			}
			if !strings.HasPrefix(server, "stun:") && !strings.HasPrefix(server, "turn:") && !strings.HasPrefix(server, "turns:") {
				return fmt.Errorf("invalid ICE server %q", server)
			}
		}
	case "TIMEZONE":
		if value != "" {
			if _, err := time.LoadLocation(value); err != nil {
				return fmt.Errorf("invalid timezone: %v", err)
			}
		}
	case "NOTIFICATION_DISPLAY_DURATION":
		// 表示秒数のチェック（1〜60秒）
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 60 {
			return fmt.Errorf("must be integer between 1 and 60 seconds")
		}
	case "SIGNALING_SECURE", "WEBSOCKET_DISABLED_DEV", "WEBSOCKET_DISABLED_PROD", "DEMO_MODE", "DEBUG_OUTPUT":
		// boolean値のチェック
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		// 必須で空のデフォルトは書き込まない
		if setting.Value == "" {
			continue
		}
		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}
