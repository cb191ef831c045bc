package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"medical-intake-agent/internal/agent"
	"medical-intake-agent/internal/config"
	"medical-intake-agent/internal/consultation"
	"medical-intake-agent/internal/logging"
	"medical-intake-agent/internal/memory"
	"medical-intake-agent/internal/platform/supabase"
	"medical-intake-agent/internal/platform/telegram"
	"medical-intake-agent/internal/report"
	"medical-intake-agent/migrations"
)

var version = "dev"

type flags struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		f         flags
		cfg       *config.Config
		logCloser = func() {}
	)

	app := &cli.Command{
		Name:    "intake-server",
		Usage:   "Adaptive medical intake assessment service",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("INTAKE_CONFIG"),
				Value:       "config.yaml",
				Destination: &f.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("INTAKE_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to stdout)",
				Sources:     cli.EnvVars("INTAKE_LOG_FILE"),
				Destination: &f.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, closer, err := logging.New(f.LogLevel, f.LogFile)
			if err != nil {
				return ctx, fmt.Errorf("setup logger: %w", err)
			}
			log.Logger = logger
			logCloser = closer

			cfg, err = config.Load(f.ConfigPath)
			if err != nil {
				return ctx, fmt.Errorf("load config: %w", err)
			}
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			logCloser()
			return nil
		},
		DefaultCommand: "serve",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP API",
				Action: func(ctx context.Context, c *cli.Command) error {
					return serve(ctx, cfg)
				},
			},
			{
				Name:  "migrate",
				Usage: "manage the database schema",
				Commands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply all pending migrations",
						Action: func(ctx context.Context, c *cli.Command) error {
							return withDB(ctx, cfg.Database, func(db *sql.DB) error {
								if err := migrations.Up(db); err != nil {
									return err
								}
								log.Info().Msg("migrations applied")
								return nil
							})
						},
					},
					{
						Name:  "down",
						Usage: "roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							steps := int(c.Int("steps"))
							if steps < 1 {
								return errors.New("steps must be positive")
							}
							return withDB(ctx, cfg.Database, func(db *sql.DB) error {
								if err := migrations.Down(db, steps); err != nil {
									return err
								}
								log.Info().Int("steps", steps).Msg("migrations rolled back")
								return nil
							})
						},
					},
					{
						Name:  "version",
						Usage: "print the applied schema version",
						Action: func(ctx context.Context, c *cli.Command) error {
							return withDB(ctx, cfg.Database, func(db *sql.DB) error {
								v, dirty, err := migrations.Version(db)
								if err != nil {
									return err
								}
								fmt.Printf("version %d (dirty: %t)\n", v, dirty)
								return nil
							})
						},
					},
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("exiting")
		logCloser()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Component("server")

	db, err := openDB(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := migrations.Up(db); err != nil {
		return err
	}
	logger.Info().Msg("migrations applied")

	mem, err := newMemoryStore(ctx, cfg.Memory)
	if err != nil {
		return err
	}
	defer mem.Close()

	chatClient := agent.NewOpenAIClient(agent.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.ChatModel,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	})
	reportClient := agent.NewOpenAIClient(agent.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.ReportModel,
		MaxTokens:   cfg.OpenAI.MaxTokens * 2,
		Temperature: cfg.OpenAI.Temperature,
	})

	pdf := report.NewPDFRenderer(cfg.Report.FontPaths)

	deps := consultation.Deps{
		Repo:        consultation.NewRepository(db),
		Memory:      mem,
		Generator:   chatClient,
		Synthesizer: report.NewSynthesizer(reportClient),
		Analyzer:    report.NewSymptomAnalyzer(chatClient),
	}

	if cfg.Telegram.Token != "" && cfg.Telegram.DoctorChatID != 0 {
		tg := telegram.NewClient(cfg.Telegram.Token, cfg.Telegram.BaseURL)
		deps.Publisher = report.NewPublisher(tg, pdf, cfg.Telegram.DoctorChatID)
	} else {
		logger.Warn().Msg("TELEGRAM_BOT_TOKEN or DOCTOR_CHAT_ID is not set, reports will not be delivered")
	}

	if cfg.Supabase.URL != "" {
		sb, err := supabase.New(supabase.Config{
			URL:               cfg.Supabase.URL,
			APIKey:            cfg.Supabase.Key,
			ProfilesTable:     cfg.Supabase.ProfilesTable,
			HearingTestsTable: cfg.Supabase.HearingTestsTable,
			CacheTTL:          cfg.Supabase.CacheTTL,
		})
		if err != nil {
			return err
		}
		defer sb.Close()
		deps.Profiles = sb
		deps.HearingTests = sb
	} else {
		logger.Info().Msg("supabase is not configured, running without user profiles")
	}

	svc := consultation.NewService(deps, consultation.Settings{
		Rules:           cfg.Engine.Rules,
		TurnCeiling:     cfg.Engine.TurnCeiling,
		HistoryWindow:   cfg.Engine.HistoryWindow,
		MinReportTurns:  cfg.Engine.MinReportTurns,
		ProviderTimeout: cfg.Engine.ProviderTimeout,
	})
	handler := consultation.NewHandler(svc, pdf)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// CORS for frontend
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
			if r.Method == http.MethodOptions {
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		consultation.RegisterRoutes(r, handler)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func withDB(ctx context.Context, cfg config.DatabaseConfig, fn func(*sql.DB) error) error {
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(db)
}

// openDB connects to Postgres, retrying while the database starts up.
func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)

	for i := 1; i <= cfg.ConnectRetries; i++ {
		if err = db.PingContext(ctx); err == nil {
			log.Info().Msg("connected to database")
			return db, nil
		}
		log.Warn().Err(err).Msgf("waiting for database (%d/%d)", i, cfg.ConnectRetries)

		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	_ = db.Close()
	return nil, fmt.Errorf("could not connect to database: %w", err)
}

func newMemoryStore(ctx context.Context, cfg config.MemoryConfig) (memory.Store, error) {
	opts := []memory.StoreOption{
		memory.WithTTL(cfg.TTL),
		memory.WithKeyPrefix(cfg.KeyPrefix),
	}

	if memory.StoreType(cfg.Driver) == memory.StoreTypeRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, memory.WithRedisClient(client))
	}

	store, err := memory.NewStore(memory.StoreType(cfg.Driver), opts...)
	if err != nil {
		return nil, fmt.Errorf("create memory store: %w", err)
	}
	if s, ok := store.(*memory.InMemoryStore); ok {
		s.StartSweeper(ctx, time.Minute)
	}
	log.Info().Str("driver", cfg.Driver).Msg("session memory ready")
	return store, nil
}
