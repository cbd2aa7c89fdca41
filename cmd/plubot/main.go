package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/quantumweb/plubot/internal/api"
	"github.com/quantumweb/plubot/internal/cache"
	"github.com/quantumweb/plubot/internal/flow"
	"github.com/quantumweb/plubot/internal/llm"
	"github.com/quantumweb/plubot/internal/lockfile"
	"github.com/quantumweb/plubot/internal/messaging"
	"github.com/quantumweb/plubot/internal/quota"
	"github.com/quantumweb/plubot/internal/resolver"
	"github.com/quantumweb/plubot/internal/scheduler"
	"github.com/quantumweb/plubot/internal/store"
	"github.com/quantumweb/plubot/internal/twiliowhatsapp"
	"github.com/quantumweb/plubot/internal/util"
	"github.com/quantumweb/plubot/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Plubot state data
	DefaultStateDir = "/var/lib/plubot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "plubot.db"
	// DefaultWhatsAppDBFileName holds the whatsmeow device session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultOutboxPollInterval is how often queued Twilio replies are sent
	DefaultOutboxPollInterval = 2 * time.Second
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.LogLevel)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}
	applyFlags(&config, flags)

	if err := ensureDirectoriesExist(config); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Plubot", "state_dir", config.StateDir, "api_addr", config.APIAddr,
		"twilio", config.TwilioAccountSID != "", "whatsapp", config.WhatsAppEnabled)
	if err := run(ctx, config, flags); err != nil {
		slog.Error("Plubot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Plubot exited successfully")
}

// Config holds environment configuration
type Config struct {
	LogLevel    string
	StateDir    string
	DatabaseURL string
	RedisURL    string

	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMMaxTokens int

	APIAddr   string
	PublicURL string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioFromNumber        string
	TwilioValidateSignature bool
	TwilioAsyncReply        bool

	WhatsAppEnabled bool
	WhatsAppDSN     string

	MaintenanceCron string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput        *string
	numeric         *bool
	stateDir        *string
	dbDSN           *string
	redisURL        *string
	apiAddr         *string
	llmModel        *string
	whatsapp        *bool
	maintenanceCron *string
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// initializeLogger installs the default structured logger
func initializeLogger(level string) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	dotenvErr := godotenv.Load()

	config := Config{
		LogLevel:    util.GetEnv("PLUBOT_LOG_LEVEL", "info"),
		StateDir:    util.GetEnv("PLUBOT_STATE_DIR", DefaultStateDir),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		LLMAPIKey:    os.Getenv("XAI_API_KEY"),
		LLMBaseURL:   util.GetEnv("LLM_BASE_URL", llm.DefaultBaseURL),
		LLMModel:     util.GetEnv("LLM_MODEL", llm.DefaultModel),
		LLMMaxTokens: util.ParseIntEnv("LLM_MAX_TOKENS", llm.DefaultMaxTokens),

		APIAddr:   util.GetEnv("API_ADDR", api.DefaultAddr),
		PublicURL: os.Getenv("PUBLIC_URL"),

		TwilioAccountSID:        os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:         os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber:        os.Getenv("TWILIO_FROM_NUMBER"),
		TwilioValidateSignature: util.ParseBoolEnv("TWILIO_VALIDATE_SIGNATURE", false),
		TwilioAsyncReply:        util.ParseBoolEnv("TWILIO_ASYNC_REPLY", false),

		WhatsAppEnabled: util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),

		MaintenanceCron: util.GetEnv("MAINTENANCE_CRON", scheduler.DefaultMaintenanceSpec),
	}

	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = defaultWhatsAppDSN(config.StateDir)
	}

	slog.Debug("environment variables loaded",
		"dotenv", dotenvErr == nil,
		"PLUBOT_STATE_DIR", config.StateDir,
		"DATABASE_URL_TYPE", store.DetectDSNType(config.DatabaseURL),
		"REDIS_URL_SET", config.RedisURL != "",
		"XAI_API_KEY_SET", config.LLMAPIKey != "",
		"LLM_MODEL", config.LLMModel,
		"API_ADDR", config.APIAddr,
		"TWILIO_ACCOUNT_SID_SET", config.TwilioAccountSID != "",
		"WHATSAPP_ENABLED", config.WhatsAppEnabled)

	return config
}

// whatsmeow requires foreign keys on its SQLite device store.
func defaultWhatsAppDSN(stateDir string) string {
	return "file:" + filepath.Join(stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	flags := Flags{
		qrOutput:        fs.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:         fs.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
		stateDir:        fs.String("state-dir", config.StateDir, "state directory for Plubot data (overrides $PLUBOT_STATE_DIR)"),
		dbDSN:           fs.String("db-dsn", config.DatabaseURL, "Postgres DSN or SQLite path (overrides $DATABASE_URL)"),
		redisURL:        fs.String("redis-url", config.RedisURL, "Redis URL for the LLM and intake cache (overrides $REDIS_URL)"),
		apiAddr:         fs.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		llmModel:        fs.String("llm-model", config.LLMModel, "LLM model name (overrides $LLM_MODEL)"),
		whatsapp:        fs.Bool("whatsapp", config.WhatsAppEnabled, "enable the native WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
		maintenanceCron: fs.String("maintenance-cron", config.MaintenanceCron, "cron spec for maintenance jobs (overrides $MAINTENANCE_CRON)"),
	}
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return flags, nil
}

// applyFlags folds flag values into config. File paths that defaulted to the
// old state directory follow a -state-dir override.
func applyFlags(config *Config, flags Flags) {
	if *flags.stateDir != config.StateDir {
		if *flags.dbDSN == filepath.Join(config.StateDir, DefaultDBFileName) {
			*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
		}
		if config.WhatsAppDSN == defaultWhatsAppDSN(config.StateDir) {
			config.WhatsAppDSN = defaultWhatsAppDSN(*flags.stateDir)
		}
	}
	config.StateDir = *flags.stateDir
	config.DatabaseURL = *flags.dbDSN
	config.RedisURL = *flags.redisURL
	config.APIAddr = *flags.apiAddr
	config.LLMModel = *flags.llmModel
	config.WhatsAppEnabled = *flags.whatsapp
	config.MaintenanceCron = *flags.maintenanceCron
}

// ensureDirectoriesExist creates the state directory and the parent of a
// file-based database.
func ensureDirectoriesExist(config Config) error {
	if err := os.MkdirAll(config.StateDir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", config.StateDir, err)
	}
	if store.DetectDSNType(config.DatabaseURL) != "postgres" {
		dir := filepath.Dir(config.DatabaseURL)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	return nil
}

// openStore picks the backend from the DSN.
func openStore(dsn string) (store.Store, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithPostgresDSN(dsn))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	return store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(config Config, flags Flags) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if parseLogLevel(config.LogLevel) == slog.LevelDebug {
		waOpts = append(waOpts, whatsapp.WithLogLevel("DEBUG"))
	}
	return waOpts
}

// buildLLMOptions constructs LLM client and provider options
func buildLLMOptions(config Config) []llm.Option {
	return []llm.Option{
		llm.WithAPIKey(config.LLMAPIKey),
		llm.WithBaseURL(config.LLMBaseURL),
		llm.WithModel(config.LLMModel),
	}
}

// buildTwilioOptions constructs Twilio client options
func buildTwilioOptions(config Config) []twiliowhatsapp.Option {
	var opts []twiliowhatsapp.Option
	if config.TwilioAccountSID != "" {
		opts = append(opts, twiliowhatsapp.WithAccountSID(config.TwilioAccountSID))
	}
	if config.TwilioAuthToken != "" {
		opts = append(opts, twiliowhatsapp.WithAuthToken(config.TwilioAuthToken))
	}
	if config.TwilioFromNumber != "" {
		opts = append(opts, twiliowhatsapp.WithFromWhats(config.TwilioFromNumber))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, twilioEnabled bool) []api.Option {
	apiOpts := []api.Option{api.WithAddr(config.APIAddr)}
	if twilioEnabled && config.TwilioAsyncReply {
		apiOpts = append(apiOpts, api.WithTwilioAsyncReply(true))
	} else if config.TwilioAsyncReply {
		slog.Warn("TWILIO_ASYNC_REPLY needs Twilio credentials, replying synchronously")
	}
	if config.TwilioValidateSignature {
		apiOpts = append(apiOpts, api.WithSignatureValidation(config.PublicURL))
	}
	return apiOpts
}

// run wires every module and blocks until ctx is cancelled.
func run(ctx context.Context, config Config, flags Flags) error {
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStore(config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	var cacheOpts []cache.Option
	if config.RedisURL != "" {
		cacheOpts = append(cacheOpts, cache.WithRedisURL(config.RedisURL))
	}
	c, err := cache.New(cacheOpts...)
	if err != nil {
		return fmt.Errorf("failed to open cache: %w", err)
	}
	defer c.Close()

	llmOpts := buildLLMOptions(config)
	provider, err := llm.NewOpenAIProvider(llmOpts...)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}
	completer := llm.NewClient(provider, c, llmOpts...)

	tracker := quota.NewTracker(st)
	res := resolver.New(resolver.Deps{
		Chatbots:    st,
		Turns:       st,
		Matcher:     flow.NewMatcher(st),
		Quota:       tracker,
		Intake:      flow.NewIntakeMachine(completer, config.LLMMaxTokens),
		IntakeStore: flow.NewIntakeStore(c, st, st),
		LLM:         completer,
		MaxTokens:   config.LLMMaxTokens,
	})

	deps := api.Deps{Resolver: res, Store: st, Quota: tracker, Assistant: completer, Cache: c}

	var twilioClient *twiliowhatsapp.Client
	if config.TwilioAccountSID != "" {
		twilioClient, err = twiliowhatsapp.NewClient(buildTwilioOptions(config)...)
		if err != nil {
			return fmt.Errorf("failed to create Twilio client: %w", err)
		}
		deps.Validator = twilioClient

		outbox := store.NewOutboxSender(st, messaging.NewTwilioService(twilioClient).OutboxSendFunc(), DefaultOutboxPollInterval)
		if err := outbox.RecoverStaleMessages(); err != nil {
			slog.Warn("Failed to recover stale outbox messages", "error", err)
		}
		go outbox.Run(ctx)
	}

	if config.WhatsAppEnabled {
		waClient, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(config, flags)...)
		if err != nil {
			return fmt.Errorf("failed to start WhatsApp client: %w", err)
		}
		defer waClient.Disconnect()

		svc := messaging.NewWhatsAppService(waClient)
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start WhatsApp service: %w", err)
		}
		defer svc.Stop()
		go messaging.NewDispatcher(res, svc, st).Run(ctx, svc.Inbound())
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	var maintOpts []scheduler.MaintenanceOption
	if mc, ok := c.(*cache.MemoryCache); ok {
		maintOpts = append(maintOpts, scheduler.WithSweeper(mc))
	}
	if err := scheduler.NewMaintenance(st, maintOpts...).Schedule(sched, config.MaintenanceCron); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", config.MaintenanceCron, err)
	}

	srv, err := api.NewServer(deps, buildAPIOptions(config, twilioClient != nil)...)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
