package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/pflag"
	"github.com/vibestore237/live-competition/internal/audio"
	"github.com/vibestore237/live-competition/internal/competitionapi"
	"github.com/vibestore237/live-competition/internal/env"
	"github.com/vibestore237/live-competition/internal/live"
	"github.com/vibestore237/live-competition/internal/localdb"
	"github.com/vibestore237/live-competition/internal/notification"
	"github.com/vibestore237/live-competition/internal/shared/logger"
	"github.com/vibestore237/live-competition/internal/types"
	"github.com/vibestore237/live-competition/internal/version"
	"github.com/vibestore237/live-competition/internal/webserver"
	"go.uber.org/zap"
)

const demoCompetitionID = "demo"

type options struct {
	demo          bool
	competitionID string
	token         string
	host          string
	port          int
	debug         bool
	dbPath        string
	audioFile     string
	showVersion   bool
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("live-competition", pflag.ContinueOnError)
	flagSet.BoolVar(&opts.demo, "demo", false, "run with demo data and simulated signaling")
	flagSet.StringVar(&opts.competitionID, "competition", "", "competition id (overrides COMPETITION_ID)")
	flagSet.StringVar(&opts.token, "token", "", "bearer token identifying the local user (overrides API_TOKEN)")
	flagSet.StringVar(&opts.host, "host", "", "local UI server bind address (overrides SERVER_HOST)")
	flagSet.IntVar(&opts.port, "port", 0, "local UI server port (overrides SERVER_PORT)")
	flagSet.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&opts.dbPath, "db", "", "sqlite database path (overrides DB_PATH)")
	flagSet.StringVar(&opts.audioFile, "audio", "", "Ogg/Opus file used as the broadcast source (overrides MEDIA_FILE)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if opts.showVersion {
		info := version.Get()
		fmt.Printf("live-competition %s (%s, built %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return nil
	}

	logger.Init(opts.debug)
	defer logger.Sync()

	dbPath := opts.dbPath
	if dbPath == "" {
		dbPath = os.Getenv("DB_PATH")
	}
	if dbPath == "" {
		dbPath = "local.db"
	}
	if _, err := localdb.SetupDB(dbPath); err != nil {
		return fmt.Errorf("failed to setup database: %w", err)
	}
	defer localdb.CloseDB()

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()
	applyFlags(flagSet, opts)
	if env.Value.DebugOutput && !opts.debug {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}

	logger.Info("Starting live competition server",
		zap.String("version", version.Get().Version),
		zap.String("app_env", env.Value.AppEnv),
		zap.Bool("demo", env.Value.DemoMode))

	notifications := notification.NewQueue(webserver.BroadcastToast,
		time.Duration(env.Value.NotificationDisplayDuration)*time.Second)
	defer notifications.Close()

	api := competitionapi.NewClient(env.Value.APIBaseURL, env.Value.APIToken)
	identity := resolveIdentity(env.Value.APIToken, env.Value.DemoMode)

	signalingURL := ""
	if !env.Value.SignalingDisabled() {
		signalingURL = env.Value.SignalingURL()
	}

	openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	session, err := live.Open(openCtx, live.Config{
		Identity:            identity,
		CompetitionID:       env.Value.CompetitionID,
		API:                 api,
		SignalingURL:        signalingURL,
		Demo:                env.Value.DemoMode,
		Notifier:            notifications,
		Source:              audio.OggFileSource{Path: env.Value.MediaFile, Loop: true},
		ICEServers:          iceServers(env.Value.ICEServers),
		PerformanceDuration: env.Value.PerformanceDuration(),
	})
	cancel()
	if err != nil {
		return fmt.Errorf("failed to open live session: %w", err)
	}
	defer session.Close()

	webserver.SetSession(session)
	webserver.SetPerformanceSubmitter(api)
	webserver.SetNotificationHistory(notifications)
	webserver.SetTokenSecret(env.Value.TokenSecret)
	if env.Value.TokenSecret == "" {
		logger.Info("TOKEN_SECRET is empty, bearer tokens on the local API are rejected")
	}

	port := env.Value.ServerPort
	if err := webserver.StartWebServer(port); err != nil {
		return err
	}
	defer webserver.Shutdown()

	logger.Info("Server started",
		zap.String("host", env.Value.ServerHost),
		zap.Int("port", port),
		zap.String("competition_id", session.CompetitionID()),
		zap.String("user_id", identity.UserID),
		zap.String("role", string(identity.Role)),
		zap.Bool("simulated", session.Simulated()),
		zap.String("ui", fmt.Sprintf("http://localhost:%d/", port)),
		zap.String("spectator_url", env.Value.SpectatorURL(session.CompetitionID())))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	return nil
}

// applyFlags はコマンドラインで明示された値だけ設定に上書きする
func applyFlags(flagSet *pflag.FlagSet, opts options) {
	if flagSet.Changed("demo") {
		env.Value.DemoMode = opts.demo
	}
	if flagSet.Changed("competition") {
		env.Value.CompetitionID = opts.competitionID
	}
	if flagSet.Changed("token") {
		env.Value.APIToken = opts.token
	}
	if flagSet.Changed("host") {
		env.Value.ServerHost = opts.host
	}
	if flagSet.Changed("port") {
		env.Value.ServerPort = opts.port
	}
	if flagSet.Changed("audio") {
		env.Value.MediaFile = opts.audioFile
	}
	if flagSet.Changed("debug") {
		env.Value.DebugOutput = opts.debug
	}
	if env.Value.DemoMode && env.Value.CompetitionID == "" {
		env.Value.CompetitionID = demoCompetitionID
	}
}

// resolveIdentity decodes the local user from the bearer token. Without a
// usable token the demo host runs as admin and everyone else as a spectator.
func resolveIdentity(token string, demo bool) types.Identity {
	if token != "" {
		identity, err := competitionapi.IdentityFromToken(token)
		if err == nil {
			return identity
		}
		logger.Warn("Ignoring unreadable token", zap.Error(err))
	}
	if demo {
		return types.Identity{UserID: "demo-host", DisplayName: "Demo Host", Role: types.RoleAdmin}
	}
	return types.Identity{UserID: "local-viewer", DisplayName: "Viewer", Role: types.RoleSpectator}
}

func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
