package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"study-room-service/internal/app"
	"study-room-service/internal/config"
	"study-room-service/internal/infra/memory"
	"study-room-service/internal/infra/postgres"
	redisstore "study-room-service/internal/infra/redis"
	transport "study-room-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the study room server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 24*time.Hour)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.ContentLoader
	if pool != nil {
		loader = postgres.NewContentStore(pool)
	} else {
		questions, err := loadSampleQuestions()
		if err != nil {
			return err
		}
		log.Printf("no postgres configured, serving %d built-in questions", len(questions))
		loader = memory.NewStaticContentStore(questions)
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var content app.ContentStore
	var store app.RoomStore
	if redisClient != nil {
		content = redisstore.NewContentCache(redisClient, loader, contentTTL)
		store = redisstore.NewRoomStore(redisClient, redisTTL)
	} else {
		content = memory.NewContentCache(loader, contentTTL)
		store = memory.NewRoomStore()
	}

	retry := app.RetryPolicy{
		InitialInterval: config.TTLDuration(cfg.Retry.InitialInterval, 200*time.Millisecond),
		MaxInterval:     config.TTLDuration(cfg.Retry.MaxInterval, 5*time.Second),
		MaxElapsed:      config.TTLDuration(cfg.Retry.MaxElapsed, time.Minute),
	}
	questionDuration := config.TTLDuration(cfg.Room.QuestionDuration, 30*time.Second)

	selector := app.NewQuestionSetSelector(content, nil)
	coordinator := app.NewCoordinator(store, selector, app.NewRandomJoinCodes(),
		app.WithJoinCodeAttempts(cfg.Room.JoinCodeAttempts))
	participants := app.NewParticipants(store, content, retry)

	wsHandler := transport.NewWSHandler(coordinator, participants, store, retry)
	roomsHandler := transport.NewRoomsHandler(coordinator, participants, transport.RoomDefaults{
		QuestionCount:   config.IntOr(cfg.Room.DefaultQuestionCount, 10),
		QuestionSeconds: int(questionDuration / time.Second),
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	roomsHandler.Register(mux)

	// No WriteTimeout: websocket connections stay open for the whole room.
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting study room service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
