package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aide-bot/aide/internal/bot"
	"github.com/aide-bot/aide/internal/genai"
	"github.com/aide-bot/aide/internal/messaging"
	"github.com/aide-bot/aide/internal/store"
	"github.com/aide-bot/aide/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Aide state data
	DefaultStateDir = "/var/lib/aide"
	// DefaultContentDir is the default directory for the markdown content catalog
	DefaultContentDir = "content"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "aide.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	msgOpts := buildMessagingOptions(flags)
	storeOpts := buildStoreOptions(flags)
	genaiOpts := buildGenAIOptions(flags)
	botOpts := buildBotOptions(flags)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Aide with configured modules")
	slog.Debug("Module options counts", "messaging", len(msgOpts), "store", len(storeOpts), "genai", len(genaiOpts), "bot", len(botOpts))
	if err := bot.Run(ctx, msgOpts, storeOpts, genaiOpts, botOpts); err != nil {
		slog.Error("Aide failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Aide exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken   string
	OpenAIKey       string
	DatabaseURL     string
	StateDir        string
	ContentDir      string
	CheckinSchedule string
	Debug           bool
}

// Flags holds command line flag values
type Flags struct {
	telegramToken   *string
	openaiKey       *string
	dbDSN           *string
	stateDir        *string
	contentDir      *string
	checkinSchedule *string
}

// initializeLogger sets up structured logging. AIDE_DEBUG enables debug level.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("AIDE_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        util.EnvOrDefault("AIDE_STATE_DIR", DefaultStateDir),
		ContentDir:      util.EnvOrDefault("AIDE_CONTENT_DIR", DefaultContentDir),
		CheckinSchedule: os.Getenv("CHECKIN_SCHEDULE"),
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"AIDE_STATE_DIR", config.StateDir,
		"AIDE_CONTENT_DIR", config.ContentDir,
		"CHECKIN_SCHEDULE", config.CheckinSchedule)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken:   flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN or SQLite path (overrides $DATABASE_URL)"),
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for Aide data (overrides $AIDE_STATE_DIR)"),
		contentDir:      flag.String("content-dir", config.ContentDir, "directory with the markdown content catalog (overrides $AIDE_CONTENT_DIR)"),
		checkinSchedule: flag.String("checkin-schedule", config.CheckinSchedule, "cron expression for the weekly check-in sweep (overrides $CHECKIN_SCHEDULE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"telegramTokenSet", *flags.telegramToken != "",
		"openaiKeySet", *flags.openaiKey != "",
		"dbDSN_set", *flags.dbDSN != "",
		"stateDir", *flags.stateDir,
		"contentDir", *flags.contentDir,
		"checkinSchedule", *flags.checkinSchedule)

	// Keep the SQLite path inside the state directory when only the latter moved
	if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) && *flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		slog.Debug("Updated dbDSN based on state directory", "new_state_dir", *flags.stateDir)
	}

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildMessagingOptions constructs Telegram configuration options
func buildMessagingOptions(flags Flags) []messaging.Option {
	var msgOpts []messaging.Option
	if *flags.telegramToken != "" {
		msgOpts = append(msgOpts, messaging.WithToken(*flags.telegramToken))
	}
	if timeout := util.ParseIntEnv("TELEGRAM_POLL_TIMEOUT", 0); timeout > 0 {
		msgOpts = append(msgOpts, messaging.WithPollTimeout(timeout))
	}
	return msgOpts
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	var storeOpts []store.Option
	if *flags.dbDSN != "" {
		if store.DetectDSNType(*flags.dbDSN) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
			storeOpts = append(storeOpts, store.WithPostgresDSN(*flags.dbDSN))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
			storeOpts = append(storeOpts, store.WithSQLiteDSN(*flags.dbDSN))
		}
	} else {
		slog.Debug("No database DSN provided, will use in-memory store")
	}
	return storeOpts
}

// buildGenAIOptions constructs GenAI configuration options
func buildGenAIOptions(flags Flags) []genai.Option {
	var genaiOpts []genai.Option
	if *flags.openaiKey != "" {
		genaiOpts = append(genaiOpts, genai.WithAPIKey(*flags.openaiKey))
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		genaiOpts = append(genaiOpts, genai.WithModel(model))
	}
	return genaiOpts
}

// buildBotOptions constructs bot configuration options
func buildBotOptions(flags Flags) []bot.Option {
	var botOpts []bot.Option
	if *flags.contentDir != "" {
		botOpts = append(botOpts, bot.WithContentDir(*flags.contentDir))
	}
	if *flags.checkinSchedule != "" {
		botOpts = append(botOpts, bot.WithCheckinSchedule(*flags.checkinSchedule))
	}
	return botOpts
}
