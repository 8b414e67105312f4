package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/supportflow/supportflow/internal/api"
	"github.com/supportflow/supportflow/internal/flow"
	"github.com/supportflow/supportflow/internal/genai"
	"github.com/supportflow/supportflow/internal/knowledge"
	"github.com/supportflow/supportflow/internal/messaging"
	"github.com/supportflow/supportflow/internal/store"
	"github.com/supportflow/supportflow/internal/twilio"
	"github.com/supportflow/supportflow/internal/util"
	"github.com/supportflow/supportflow/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SupportFlow state data
	DefaultStateDir = "/var/lib/supportflow"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "supportflow.db"
	// DefaultFlowFile is the default flow definition path
	DefaultFlowFile = "flows/order_support.yaml"
	// DefaultJanitorInterval is how often idle sessions are swept
	DefaultJanitorInterval = 10 * time.Minute
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping SupportFlow with configured modules")
	if err := run(ctx, flags); err != nil {
		slog.Error("SupportFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SupportFlow exited successfully")
}

// run wires the modules and blocks until the context is cancelled.
func run(ctx context.Context, flags Flags) error {
	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	llm, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		return err
	}

	index, err := buildKnowledgeIndex(ctx, flags, llm)
	if err != nil {
		return err
	}

	def, err := flow.LoadDefinitionFile(*flags.flowFile)
	if err != nil {
		return err
	}

	actions := flow.NewRegistry()
	if err := actions.Register(flow.OrderStatusActionName, flow.NewOrderStatusAction(st)); err != nil {
		return err
	}

	orchestrator, err := flow.NewOrchestrator(def, actions, st, llm, buildOrchestratorOptions(flags, index)...)
	if err != nil {
		return err
	}

	msgService, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	if msgService != nil {
		if err := msgService.Start(ctx); err != nil {
			return err
		}
		defer msgService.Stop()

		responder, err := messaging.NewResponder(msgService, orchestrator, messaging.WithTranscript(st))
		if err != nil {
			return err
		}
		responder.Start(ctx)
	}

	go runSessionJanitor(ctx, st, *flags.sessionTTL)

	apiOpts := []api.Option{api.WithKnowledgeIndex(index)}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if msgService != nil {
		apiOpts = append(apiOpts, api.WithMessagingService(msgService))
	}
	server, err := api.NewServer(orchestrator, st, apiOpts...)
	if err != nil {
		return err
	}
	return server.Run(ctx)
}

// Config holds environment configuration
type Config struct {
	DatabaseURL  string
	RedisAddr    string
	StateDir     string
	OpenAIKey    string
	APIAddr      string
	FlowFile     string
	SystemPrompt string
	KnowledgeDSN string
	Transport    string
	WhatsAppDSN  string
	NumericCode  bool
	SessionTTL   time.Duration
	HistoryLimit int
	ContextRole  string
}

// Flags holds command line flag values
type Flags struct {
	qrOutput     *string
	numeric      *bool
	stateDir     *string
	dbDSN        *string
	redisAddr    *string
	openaiKey    *string
	apiAddr      *string
	flowFile     *string
	systemPrompt *string
	knowledgeDSN *string
	transport    *string
	whatsappDSN  *string
	sessionTTL   *time.Duration
	historyLimit *int
	contextRole  *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		StateDir:     os.Getenv("SUPPORTFLOW_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		APIAddr:      os.Getenv("API_ADDR"),
		FlowFile:     os.Getenv("FLOW_FILE"),
		SystemPrompt: os.Getenv("SYSTEM_PROMPT_FILE"),
		KnowledgeDSN: os.Getenv("KNOWLEDGE_DSN"),
		Transport:    os.Getenv("MESSAGING_TRANSPORT"),
		WhatsAppDSN:  os.Getenv("WHATSAPP_DB_DSN"),
		NumericCode:  util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
		SessionTTL:   util.ParseDurationEnv("SESSION_TTL", 0),
		HistoryLimit: util.ParseIntEnv("HISTORY_LIMIT", flow.DefaultHistoryLimit),
		ContextRole:  os.Getenv("CONTEXT_ROLE"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SUPPORTFLOW_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.FlowFile == "" {
		config.FlowFile = DefaultFlowFile
	}
	if config.DatabaseURL == "" && config.RedisAddr == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = filepath.Join(config.StateDir, "whatsmeow.db")
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR_SET", config.RedisAddr != "",
		"SUPPORTFLOW_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"FLOW_FILE", config.FlowFile,
		"KNOWLEDGE_DSN_SET", config.KnowledgeDSN != "",
		"MESSAGING_TRANSPORT", config.Transport)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		qrOutput:     flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:      flag.Bool("numeric-code", config.NumericCode, "use numeric WhatsApp login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for SupportFlow data (overrides $SUPPORTFLOW_STATE_DIR)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		redisAddr:    flag.String("redis-addr", config.RedisAddr, "Redis address for the session store (overrides $REDIS_ADDR)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		flowFile:     flag.String("flow-file", config.FlowFile, "flow definition YAML file (overrides $FLOW_FILE)"),
		systemPrompt: flag.String("system-prompt-file", config.SystemPrompt, "system prompt file for fallback chat (overrides $SYSTEM_PROMPT_FILE)"),
		knowledgeDSN: flag.String("knowledge-dsn", config.KnowledgeDSN, "PostgreSQL DSN for the pgvector knowledge index (overrides $KNOWLEDGE_DSN)"),
		transport:    flag.String("transport", config.Transport, "messaging transport: whatsapp, twilio or none (overrides $MESSAGING_TRANSPORT)"),
		whatsappDSN:  flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow database DSN (overrides $WHATSAPP_DB_DSN)"),
		sessionTTL:   flag.Duration("session-ttl", config.SessionTTL, "idle session expiry, 0 disables (overrides $SESSION_TTL)"),
		historyLimit: flag.Int("history-limit", config.HistoryLimit, "chat history entries kept per session (overrides $HISTORY_LIMIT)"),
		contextRole:  flag.String("context-role", config.ContextRole, "role for retrieved context messages: system or assistant (overrides $CONTEXT_ROLE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"redisAddr", *flags.redisAddr,
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"flowFile", *flags.flowFile,
		"transport", *flags.transport,
		"sessionTTL", *flags.sessionTTL,
		"historyLimit", *flags.historyLimit)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if *flags.dbDSN != "" && store.DetectDSNType(*flags.dbDSN) == "sqlite" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore constructs the session store backend from flags. Redis takes
// precedence, then the DSN type picks PostgreSQL or SQLite.
func buildStore(flags Flags) (store.Store, error) {
	if *flags.redisAddr != "" {
		slog.Debug("Configuring Redis store", "addr", *flags.redisAddr)
		return store.NewRedisStore(store.RedisOptions{
			Addr:       *flags.redisAddr,
			Password:   os.Getenv("REDIS_PASSWORD"),
			DB:         util.ParseIntEnv("REDIS_DB", 0),
			SessionTTL: *flags.sessionTTL,
		})
	}
	if *flags.dbDSN == "" {
		slog.Debug("No database DSN provided, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "dsn_type", "sqlite", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
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

// buildKnowledgeIndex constructs the retrieval index: pgvector when a
// knowledge DSN is configured, in-process otherwise.
func buildKnowledgeIndex(ctx context.Context, flags Flags, embedder knowledge.Embedder) (knowledge.Index, error) {
	if *flags.knowledgeDSN != "" {
		slog.Debug("Configuring pgvector knowledge index")
		return knowledge.NewPGVectorIndex(ctx, *flags.knowledgeDSN, embedder)
	}
	slog.Debug("Configuring in-memory knowledge index")
	return knowledge.NewMemoryIndex(embedder), nil
}

// buildOrchestratorOptions constructs orchestrator configuration options
func buildOrchestratorOptions(flags Flags, index knowledge.Index) []flow.Option {
	opts := []flow.Option{
		flow.WithRetriever(index),
		flow.WithHistoryLimit(*flags.historyLimit),
	}
	if *flags.systemPrompt != "" {
		data, err := os.ReadFile(*flags.systemPrompt)
		if err != nil {
			slog.Warn("Failed to read system prompt file, using default", "error", err, "path", *flags.systemPrompt)
		} else {
			opts = append(opts, flow.WithSystemPrompt(strings.TrimSpace(string(data))))
		}
	}
	if *flags.contextRole != "" {
		opts = append(opts, flow.WithContextRole(*flags.contextRole))
	}
	return opts
}

// buildMessagingService constructs the configured messaging transport, or
// nil when the API is the only surface.
func buildMessagingService(flags Flags) (messaging.Service, error) {
	switch strings.ToLower(*flags.transport) {
	case "whatsapp":
		waOpts := []whatsapp.Option{whatsapp.WithDBDSN(*flags.whatsappDSN)}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, err
		}
		return messaging.NewWhatsAppService(client), nil
	case "twilio":
		client, err := twilio.NewClient()
		if err != nil {
			return nil, err
		}
		return messaging.NewTwilioService(client), nil
	case "", "none":
		slog.Debug("No messaging transport configured")
		return nil, nil
	default:
		slog.Warn("Unknown messaging transport, running without one", "transport", *flags.transport)
		return nil, nil
	}
}

// runSessionJanitor periodically removes idle sessions. A zero TTL disables
// the sweep.
func runSessionJanitor(ctx context.Context, st store.Store, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(DefaultJanitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed, err := st.DeleteIdleSessions(time.Now().Add(-ttl))
			if err != nil {
				slog.Error("Session janitor sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				slog.Info("Session janitor removed idle sessions", "count", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}
