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
	"github.com/kelseyhightower/envconfig"

	"github.com/rodge1109/pagebot/internal/api"
	"github.com/rodge1109/pagebot/internal/dispatch"
	"github.com/rodge1109/pagebot/internal/genai"
	"github.com/rodge1109/pagebot/internal/geocode"
	"github.com/rodge1109/pagebot/internal/lockfile"
	"github.com/rodge1109/pagebot/internal/messenger"
	"github.com/rodge1109/pagebot/internal/scheduler"
	"github.com/rodge1109/pagebot/internal/session"
	"github.com/rodge1109/pagebot/internal/sheets"
	"github.com/rodge1109/pagebot/internal/sms"
	"github.com/rodge1109/pagebot/internal/store"
	"github.com/rodge1109/pagebot/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for pagebot state data
	DefaultStateDir = "/var/lib/pagebot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "pagebot.db"
	// DefaultTimezone anchors timestamps shown to humans
	DefaultTimezone = "Asia/Manila"
)

// Config holds environment configuration.
type Config struct {
	VerifyToken string `envconfig:"VERIFY_TOKEN" required:"true"`
	APIAddr     string `envconfig:"API_ADDR" default:":8080"`

	RootSheetID    string `envconfig:"ROOT_SHEET_ID" required:"true"`
	BillSheetID    string `envconfig:"BILL_SHEET_ID"`
	GoogleCredsB64 string `envconfig:"GOOGLE_CREDENTIALS_B64"`

	SMSProvider     string `envconfig:"SMS_PROVIDER"` // semaphore, twilio or empty
	SemaphoreAPIKey string `envconfig:"SEMAPHORE_API_KEY"`
	SemaphoreSender string `envconfig:"SEMAPHORE_SENDER_NAME"`
	TwilioSID       string `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioToken     string `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioFrom      string `envconfig:"TWILIO_FROM_NUMBER"`

	OpenAIKey string `envconfig:"OPENAI_API_KEY"`

	DBDriver    string `envconfig:"DB_DRIVER"` // sqlite3, postgres or empty for sheet-only
	DatabaseDSN string `envconfig:"DATABASE_DSN"`
	StateDir    string `envconfig:"PAGEBOT_STATE_DIR"`

	Timezone      string `envconfig:"TIMEZONE"`
	TypingDelayMS int    `envconfig:"TYPING_DELAY_MS" default:"1500"`
}

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	apiAddr := flag.String("addr", config.APIAddr, "API listen address")
	flag.Parse()
	config.APIAddr = *apiAddr

	if err := run(config); err != nil {
		slog.Error("pagebot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("pagebot exited successfully")
}

// initializeLogger sets up structured logging.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("PAGEBOT_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from the environment and an
// optional .env file.
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return config, err
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No PAGEBOT_STATE_DIR set, using default", "state_dir", config.StateDir)
	}
	if config.Timezone == "" {
		config.Timezone = DefaultTimezone
	}
	return config, nil
}

func run(config Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	tz, err := time.LoadLocation(config.Timezone)
	if err != nil {
		slog.Warn("Unknown timezone, falling back to UTC", "timezone", config.Timezone, "error", err)
		tz = time.UTC
	}

	sheetsClient, err := buildSheetsClient(ctx, config)
	if err != nil {
		return err
	}

	transport := messenger.NewClient()
	geocoder := geocode.NewClient()
	sessions := session.NewMemoryStore()

	smsSender, err := buildSMSSender(config)
	if err != nil {
		return err
	}

	persister, closer, err := buildPersister(config, sheetsClient)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer()
	}

	opts := dispatch.Options{TypingDelay: time.Duration(config.TypingDelayMS) * time.Millisecond}
	if config.OpenAIKey != "" {
		fallback, err := genai.NewClient(config.OpenAIKey)
		if err != nil {
			return err
		}
		opts.Fallback = fallback
		slog.Info("GenAI miss fallback enabled")
	}

	dispatcher := dispatch.New(sessions, sheetsClient, transport, smsSender, geocoder, persister, transport, opts)

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := scheduler.RegisterMaintenance(sched, sessions, dispatcher, nil); err != nil {
		return err
	}
	poster := scheduler.NewPoster(sheetsClient, transport, tz, nil)
	if err := poster.Register(sched); err != nil {
		return err
	}

	server, err := api.NewServer(dispatcher, sheetsClient, sheetsClient,
		api.WithAddr(config.APIAddr),
		api.WithVerifyToken(config.VerifyToken),
	)
	if err != nil {
		return err
	}

	slog.Info("Bootstrapping pagebot", "addr", config.APIAddr, "sms", config.SMSProvider, "db", config.DBDriver)
	return server.Run(ctx)
}

func buildSheetsClient(ctx context.Context, config Config) (*sheets.Client, error) {
	opts := []sheets.Option{
		sheets.WithRootSheetID(config.RootSheetID),
		sheets.WithBillSheetID(config.BillSheetID),
	}
	if config.GoogleCredsB64 != "" {
		opts = append(opts, sheets.WithCredentialsBase64(config.GoogleCredsB64))
	}
	return sheets.NewClient(ctx, opts...)
}

// buildSMSSender picks the outbound SMS provider. An empty provider
// disables booking and emergency texts.
func buildSMSSender(config Config) (sms.Sender, error) {
	switch strings.ToLower(config.SMSProvider) {
	case "":
		slog.Warn("No SMS provider configured, alerts will not be texted")
		return nil, nil
	case "semaphore":
		return sms.NewSemaphore(
			sms.WithAPIKey(config.SemaphoreAPIKey),
			sms.WithSenderName(config.SemaphoreSender),
		)
	case "twilio":
		return sms.NewTwilio(
			sms.WithAccountSID(config.TwilioSID),
			sms.WithAuthToken(config.TwilioToken),
			sms.WithFromNumber(config.TwilioFrom),
		)
	default:
		return nil, fmt.Errorf("unknown SMS provider: %s", config.SMSProvider)
	}
}

// buildPersister picks where confirmed bookings and help requests are
// written: a SQL database when a driver is configured, the spreadsheet
// otherwise.
func buildPersister(config Config, sheetsClient *sheets.Client) (dispatch.Persister, func() error, error) {
	switch strings.ToLower(config.DBDriver) {
	case "":
		return sheetsClient, nil, nil
	case "sqlite3", "sqlite":
		dsn := config.DatabaseDSN
		if dsn == "" {
			dsn = filepath.Join(config.StateDir, DefaultDBFileName)
		}
		st, err := store.NewSQLiteStore(store.WithDSN(dsn))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case "postgres":
		st, err := store.NewPostgresStore(store.WithDSN(config.DatabaseDSN))
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %s", config.DBDriver)
	}
}
