package env

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/settings"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"go.uber.org/zap"
)

// EnvValue は環境変数と設定DBをまとめた実行時設定
type EnvValue struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	// 大会API
	APIBaseURL    string `env:"API_BASE_URL" envDefault:"http://localhost:8080"`
	APIToken      string `env:"API_TOKEN"`
	CompetitionID string `env:"COMPETITION_ID"`

	// シグナリング
	SignalingHost         string   `env:"SIGNALING_HOST" envDefault:"localhost"`
	WebsocketPort         int      `env:"WEBSOCKET_PORT" envDefault:"8080"`
	SignalingSecure       bool     `env:"SIGNALING_SECURE"`
	WebsocketDisabledDev  bool     `env:"WEBSOCKET_DISABLED_DEV"`
	WebsocketDisabledProd bool     `env:"WEBSOCKET_DISABLED_PROD"`
	DemoMode              bool     `env:"DEMO_MODE"`
	ICEServers            []string `env:"ICE_SERVERS" envSeparator:","`

	// 配信
	PerformanceSeconds     int    `env:"PERFORMANCE_SECONDS" envDefault:"180"`
	DemoPerformanceSeconds int    `env:"DEMO_PERFORMANCE_SECONDS" envDefault:"60"`
	MediaFile              string `env:"MEDIA_FILE"`

	// ローカルサーバー
	ServerHost                  string `env:"SERVER_HOST" envDefault:"127.0.0.1"`
	ServerPort                  int    `env:"SERVER_PORT" envDefault:"8090"`
	TokenSecret                 string `env:"TOKEN_SECRET"`
	SpectatorBaseURL            string `env:"SPECTATOR_BASE_URL" envDefault:"http://localhost:5173"`
	Timezone                    string `env:"TIMEZONE" envDefault:"Africa/Douala"`
	DebugOutput                 bool   `env:"DEBUG_OUTPUT"`
	NotificationDisplayDuration int    `env:"NOTIFICATION_DISPLAY_DURATION" envDefault:"5"`
	DBPath                      string `env:"DB_PATH" envDefault:"local.db"`
}

var Value EnvValue

// LoadEnv reads .env, the process environment and the settings table.
// Stored settings win over the environment.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	if db := localdb.GetDB(); db != nil {
		sm := settings.NewSettingsManager(db)
		if err := sm.MigrateFromEnv(); err != nil {
			logger.Warn("Failed to migrate settings from environment", zap.Error(err))
		}
		if err := sm.InitializeDefaultSettings(); err != nil {
			logger.Warn("Failed to initialize default settings", zap.Error(err))
		}
	}

	if err := ReloadFromDatabase(); err != nil {
		logger.Error("Failed to load configuration", zap.Error(err))
	}
}

// ReloadFromDatabase re-parses Value from the environment overlaid with the
// settings table.
func ReloadFromDatabase() error {
	environment := env.ToMap(os.Environ())

	if db := localdb.GetDB(); db != nil {
		overrides, err := settings.NewSettingsManager(db).Overrides()
		if err != nil {
			return fmt.Errorf("failed to read settings: %w", err)
		}
		for key, value := range overrides {
			if value == "" {
				continue
			}
			environment[key] = value
		}
	}

	loaded, err := Parse(environment)
	if err != nil {
		return err
	}
	Value = loaded
	return nil
}

// Parse builds an EnvValue from the given key/value pairs.
func Parse(environment map[string]string) (EnvValue, error) {
	var v EnvValue
	if err := env.ParseWithOptions(&v, env.Options{Environment: environment}); err != nil {
		return EnvValue{}, fmt.Errorf("parse env: %w", err)
	}

	servers := v.ICEServers[:0]
	for _, server := range v.ICEServers {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	v.ICEServers = servers
	return v, nil
}

func (v EnvValue) IsProduction() bool {
	return v.AppEnv == "production"
}

// SignalingDisabled reports whether the live signaling server must not be
// used, which forces the simulated client.
func (v EnvValue) SignalingDisabled() bool {
	if v.DemoMode {
		return true
	}
	if v.IsProduction() {
		return v.WebsocketDisabledProd
	}
	return v.WebsocketDisabledDev
}

// SignalingURL returns the WebSocket URL of the signaling server.
func (v EnvValue) SignalingURL() string {
	host := v.SignalingHost
	if host == "" {
		host = "localhost"
	}
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(v.WebsocketPort))
	}

	scheme := "ws"
	if v.SignalingSecure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/ws"}
	return u.String()
}

// PerformanceDuration returns the broadcast time limit for the current mode.
func (v EnvValue) PerformanceDuration() time.Duration {
	if v.DemoMode {
		return time.Duration(v.DemoPerformanceSeconds) * time.Second
	}
	return time.Duration(v.PerformanceSeconds) * time.Second
}

// Location returns the competition timezone, falling back to local time.
func (v EnvValue) Location() *time.Location {
	if v.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(v.Timezone)
	if err != nil {
		logger.Warn("Invalid timezone, using local time", zap.String("timezone", v.Timezone), zap.Error(err))
		return time.Local
	}
	return loc
}

// SpectatorURL returns the public link spectators use to join the competition.
func (v EnvValue) SpectatorURL(competitionID string) string {
	base := strings.TrimRight(v.SpectatorBaseURL, "/")
	return fmt.Sprintf("%s/competitions/%s/live", base, url.PathEscape(competitionID))
}
