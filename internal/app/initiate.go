package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/cors"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/config"
	"github.com/shandysiswandi/gostream/internal/pkg/goroutine"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/pkg/router"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
	"github.com/shandysiswandi/gostream/internal/pkg/validator"
	"github.com/shandysiswandi/gostream/internal/stream/entity"
)

func (a *App) configPath() string {
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		return path
	}
	if os.Getenv("LOCAL") == "true" {
		return "./config/config.yaml"
	}
	return "/config/config.yaml"
}

func (a *App) initConfig() {
	cfg, err := config.NewViper(a.configPath(), config.WithWatch(), config.WithEnv("GOSTREAM"))
	if err != nil {
		slog.Error("failed to init config", "error", err)
		os.Exit(1)
	}

	//nolint:errcheck,gosec // ignore error
	os.Setenv("TZ", cfg.GetString("app.tz"))

	a.config = cfg
}

func (a *App) initInstrument() {
	ins, err := instrument.New(context.Background(), &instrument.Config{
		Enabled:          a.config.GetBool("instrument.enabled"),
		ServiceName:      a.config.GetString("instrument.service_name"),
		ServiceVersion:   a.config.GetString("instrument.service_version"),
		Environment:      a.config.GetString("instrument.env"),
		OTLPEndpoint:     a.config.GetString("instrument.otlp_endpoint"),
		OTLPSecure:       a.config.GetBool("instrument.otlp_secure"),
		TraceSampleRatio: a.config.GetFloat64("instrument.trace_sample_ratio"),
		MetricsInterval:  a.config.GetSecond("instrument.metric_interval_seconds"),
		MaskFields:       a.config.GetArray("instrument.log_mask_fields"),
		LogLevel:         a.config.GetString("instrument.log_level"),
		MessagingSystem:  a.config.GetString("app.broker"),
	})
	if err != nil {
		slog.Error("failed to init instrumentation", "error", err)
		os.Exit(1)
	}
	a.ins = ins
}

func (a *App) initLibraries() {
	a.clock = clock.New()
	a.uuid = uid.NewUUID()
	a.shortHex = uid.NewShortHex(4)
	a.goroutine = goroutine.NewManager(a.config.GetInt("app.server.max_goroutine"))

	validator, err := validator.NewV10Validator()
	if err != nil {
		slog.Error("failed to init validation v10 validator", "error", err)
		os.Exit(1)
	}
	a.validator = validator
}

// loadDocument decodes a JSON backend document into out and validates it.
func (a *App) loadDocument(path string, out any) {
	if err := config.LoadFile(path, out); err != nil {
		slog.Error("failed to load config document", "path", path, "error", err)
		os.Exit(1)
	}
	if err := a.validator.Validate(out); err != nil {
		slog.Error("invalid config document", "path", path, "error", err)
		os.Exit(1)
	}
}

// pubsubClientOptions builds client options from a Pub/Sub document. An
// endpoint without credentials is treated as the emulator.
func (a *App) pubsubClientOptions(credentialsFile, endpoint string) []option.ClientOption {
	var opts []option.ClientOption

	if v := strings.TrimSpace(credentialsFile); v != "" {
		// #nosec G304 -- path is from trusted config file.
		credsJSON, err := os.ReadFile(v)
		if err != nil {
			slog.Error("failed to read pubsub credentials file", "error", err)
			os.Exit(1)
		}
		creds, err := google.CredentialsFromJSON(a.ctx, credsJSON, pubsub.ScopePubSub)
		if err != nil {
			slog.Error("failed to parse pubsub credentials file", "error", err)
			os.Exit(1)
		}
		opts = append(opts, option.WithCredentials(creds))
	}

	if v := strings.TrimSpace(endpoint); v != "" {
		opts = append(opts, option.WithEndpoint(v))
		if len(opts) == 1 {
			opts = append(opts,
				option.WithoutAuthentication(),
				option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
	}

	return opts
}

func (a *App) initMessaging() {
	a.mode = strings.TrimSpace(a.config.GetString("app.mode"))
	a.broker = strings.TrimSpace(a.config.GetString("app.broker"))
	dir := a.config.GetString("app.config_dir")
	if dir == "" {
		dir = filepath.Dir(a.configPath())
	}

	if err := config.LoadFile(filepath.Join(dir, "topics.json"), &a.topics); err != nil {
		slog.Error("failed to load topics", "error", err)
		os.Exit(1)
	}
	if a.topics.In() == "" {
		slog.Error("topics.json must bind a topic to the role", "role", entity.RoleTopicIn)
		os.Exit(1)
	}

	opts := messaging.FactoryOptions{Clock: a.clock}
	switch a.broker {
	case messaging.DriverKafka:
		a.loadDocument(filepath.Join(dir, a.broker, "sender.json"), &opts.KafkaSender)
		a.loadDocument(filepath.Join(dir, a.broker, "receiver.json"), &opts.KafkaReceiver)
	case messaging.DriverPubSub:
		a.loadDocument(filepath.Join(dir, a.broker, "sender.json"), &opts.PubSubSender)
		a.loadDocument(filepath.Join(dir, a.broker, "receiver.json"), &opts.PubSubReceiver)
		opts.PubSubSender.ClientOptions = a.pubsubClientOptions(opts.PubSubSender.CredentialsFile, opts.PubSubSender.Endpoint)
		opts.PubSubReceiver.ClientOptions = a.pubsubClientOptions(opts.PubSubReceiver.CredentialsFile, opts.PubSubReceiver.Endpoint)
		opts.PubSubReceiver.Suffix = a.shortHex
	}

	sender, err := messaging.NewSenderFromDriver(a.ctx, a.broker, opts,
		messaging.WithSenderInstrumentation(a.ins),
		messaging.WithFlushCycle(a.config.GetMillisecond("messaging.flush_cycle_ms")),
		messaging.WithCloseTimeout(a.config.GetSecond("messaging.close_timeout_seconds")),
	)
	if err != nil {
		slog.Error("failed to init messaging sender", "error", err, "broker", a.broker)
		os.Exit(1)
	}
	a.sender = sender

	// Kafka administers topics through a separate client; this is the one
	// place the backends differ at setup.
	if a.broker == messaging.DriverKafka {
		var admin messaging.KafkaAdminConfig
		a.loadDocument(filepath.Join(dir, a.broker, "admin.json"), &admin)
		if err := a.sender.AttachAdmin(admin); err != nil {
			slog.Error("failed to attach kafka admin config", "error", err)
			os.Exit(1)
		}
	}

	receiver, err := messaging.NewReceiverFromDriver(a.ctx, a.broker, opts,
		messaging.WithReceiverInstrumentation(a.ins),
	)
	if err != nil {
		slog.Error("failed to init messaging receiver", "error", err, "broker", a.broker)
		os.Exit(1)
	}
	a.receiver = receiver

	slog.Info("messaging ready", "broker", a.broker, "topics", a.topics.Names())
}

func (a *App) initHTTPServer() {
	a.router = router.NewRouter(router.Config{
		Name:       a.config.GetString("instrument.service_name"),
		UUID:       a.uuid,
		Instrument: a.ins,
	})

	a.router.GET("/health", func(*router.Request) (any, error) {
		return map[string]string{
			"status":   "ok",
			"broker":   a.broker,
			"receiver": a.receiver.State().String(),
		}, nil
	})

	routerWithCORS := cors.New(cors.Options{
		AllowedOrigins: a.config.GetArray("app.server.cors"),
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(a.router)

	a.httpServer = &http.Server{
		Addr:              a.config.GetString("app.server.http.address"),
		Handler:           routerWithCORS,
		ReadTimeout:       a.config.GetSecond("app.server.http.read_timeout_seconds"),
		ReadHeaderTimeout: a.config.GetSecond("app.server.http.read_header_timeout_seconds"),
		WriteTimeout:      a.config.GetSecond("app.server.http.write_timeout_seconds"),
		IdleTimeout:       a.config.GetSecond("app.server.http.idle_timeout_seconds"),
	}
}

func (a *App) initClosers() {
	a.closers = []closer{
		{
			name: "Receiver",
			fn: func(context.Context) error {
				return a.receiver.Close()
			},
		},
		{
			name: "Sender",
			fn: func(context.Context) error {
				return a.sender.Close()
			},
		},
		{
			name: "Instrument",
			fn: func(ctx context.Context) error {
				return a.ins.Shutdown(ctx)
			},
		},
		{
			name: "Config",
			fn: func(context.Context) error {
				return a.config.Close()
			},
		},
	}
}
