package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"bridgeme/internal/ai"
	"bridgeme/internal/chat"
	"bridgeme/internal/config"
	"bridgeme/internal/db"
	"bridgeme/internal/draft"
	"bridgeme/internal/exchange"
	"bridgeme/internal/kv"
	"bridgeme/internal/logger"
	"bridgeme/internal/market"
	"bridgeme/internal/media"
	myMiddleware "bridgeme/internal/middleware"
	"bridgeme/internal/seed"
	"bridgeme/internal/user"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

// repositories groups the persistence of every feature. They are backed by
// PostgreSQL when DB_DSN is set and by memory otherwise.
type repositories struct {
	accounts  user.Accounts
	directory user.Directory
	items     market.ItemRepository
	purchases market.PurchaseRepository
	reviews   market.ReviewRepository
	requests  exchange.Repository
	calls     chat.Repository
}

func main() {
	// 1. Config & Flags
	envFile := flag.String("env", ".env", "optional env file")
	addr := flag.String("addr", "", "http service address (overrides ADDR)")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Failed to load config")
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	logger.Init(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Persistence
	var database *db.Database
	var repos repositories
	if cfg.DBDSN != "" {
		database, repos = connectPostgres(ctx, cfg.DBDSN)
		defer database.Close()
	} else {
		logger.Warn().Msg("DB_DSN is not set, using in-memory repositories")
		repos = memoryRepositories()
	}

	// 3. Redis fan-out
	var redisClient *redis.Client
	if cfg.UseRedis() {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
		}
		defer redisClient.Close()
		logger.Info().Msg("✅ Connected to Redis")
	}

	docs, closeDocs := openDocStore(cfg, redisClient)
	defer closeDocs()

	// 4. Outside services
	aiService, err := ai.New(ctx, ai.Config{
		APIKey:       cfg.GeminiAPIKey,
		TextModel:    cfg.GeminiTextModel,
		ImageModel:   cfg.GeminiImageModel,
		VideoModel:   cfg.GeminiVideoModel,
		PollInterval: cfg.VideoPollInterval,
		Timeout:      cfg.VideoTimeout,
		MaxPolls:     cfg.VideoMaxPolls,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Failed to initialize AI client")
	}

	memObjects := media.NewMemoryStore("/media")
	var objects media.ObjectStore = memObjects
	if cfg.S3Bucket != "" {
		s3Store, err := media.NewS3Store(ctx, media.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("❌ Failed to initialize object storage")
		}
		objects = s3Store
		logger.Info().Str("bucket", cfg.S3Bucket).Msg("✅ Object storage ready")
	}

	// 5. Features
	userService := user.NewService(repos.accounts, repos.directory, docs, cfg.JWTSecret)
	userHandler := user.NewHandler(userService)

	hub := chat.NewHub(redisClient)
	go hub.Run(ctx)
	go hub.SubscribeToRedis(ctx)

	chatService, err := chat.NewService(chat.Options{
		Directory:      repos.directory,
		AI:             aiService,
		Docs:           docs,
		Archive:        repos.calls,
		Publisher:      hub,
		Media:          objects,
		AutoReplyDelay: cfg.AutoReplyDelay,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Failed to initialize chat")
	}
	chatHandler := chat.NewHandler(hub, chatService)

	drafts := draft.NewManager(docs, cfg.DraftDebounce)
	marketService := market.NewService(market.Options{
		Items:     repos.items,
		Purchases: repos.purchases,
		Reviews:   repos.reviews,
		Directory: repos.directory,
		Docs:      docs,
		Drafts:    drafts,
		Media:     objects,
		AI:        aiService,
	})
	exchangeService := exchange.NewService(repos.requests, repos.directory, uuid.NewString)
	aiHandler := ai.NewHandler(aiService, repos.directory, userService, objects, uuid.NewString)

	authMiddleware := myMiddleware.NewAuthMiddleware(userService)
	limiter := myMiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go sweepLimiter(ctx, limiter)

	// 6. Define Routes
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(myMiddleware.Logging)
	r.Use(myMiddleware.Metrics)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.Handler())
	if cfg.S3Bucket == "" {
		r.Get("/media/*", serveMemoryObject(memObjects))
	}

	// Public Routes
	r.Group(func(r chi.Router) {
		r.Use(limiter.Handle)
		r.Post("/register", userHandler.Register)
		r.Post("/login", userHandler.Login)
	})

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// WebSocket (Real-time)
		r.Get("/ws", chatHandler.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Use(limiter.Handle)
			r.Get("/users/search", userHandler.SearchUsers)
			r.Get("/members/{id}", userHandler.GetMember)
			r.Get("/profile", userHandler.GetProfile)
			r.Put("/profile", userHandler.SaveProfile)
			r.Put("/profile/avatar", userHandler.SaveAvatar)

			r.Route("/ai", aiHandler.Routes)
			chatHandler.Routes(r)
			draft.NewHandler(drafts).Routes(r)
			market.NewHandler(marketService).Routes(r)
			exchange.NewHandler(exchangeService).Routes(r)
		})
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	drafts.Close(shutdownCtx)
	chatService.Close()
}

func connectPostgres(ctx context.Context, dsn string) (*db.Database, repositories) {
	database, err := db.NewDatabase(dsn)
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Failed to connect to DB")
	}
	logger.Info().Msg("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		logger.Fatal().Err(err).Msg("❌ Migration failed")
	}
	logger.Info().Msg("✅ Database Schema Initialized")

	users := user.NewRepository(database.Conn)
	items := market.NewRepository(database.Conn)
	requests := exchange.NewRepository(database.Conn)
	calls := chat.NewRepository(database.Conn)

	err = seed.Load(ctx, seed.Targets{
		Profiles:  users,
		Items:     items,
		Purchases: items,
		Reviews:   items,
		Requests:  requests,
		Calls:     calls,
	}, time.Now())
	if err != nil {
		logger.Fatal().Err(err).Msg("❌ Seeding failed")
	}

	return database, repositories{
		accounts:  users,
		directory: users,
		items:     items,
		purchases: items,
		reviews:   items,
		requests:  requests,
		calls:     calls,
	}
}

func memoryRepositories() repositories {
	now := time.Now()
	users := user.NewMemoryRepository(seed.Users())
	items := market.NewMemoryRepository(seed.Items(now), seed.Purchases(now), seed.Reviews(now))
	return repositories{
		accounts:  users,
		directory: users,
		items:     items,
		purchases: items,
		reviews:   items,
		requests:  exchange.NewMemoryRepository(seed.Requests(now)),
		calls:     chat.NewMemoryRepository(seed.CallLogs(now)),
	}
}

// openDocStore picks the per-user document backend and caps value sizes.
func openDocStore(cfg *config.Config, redisClient *redis.Client) (kv.Store, func()) {
	var store kv.Store
	closeFn := func() {}
	switch cfg.KVBackend {
	case "redis":
		if redisClient == nil {
			logger.Fatal().Msg("❌ KV_BACKEND=redis needs REDIS_ADDR")
		}
		store = kv.NewRedisStore(redisClient, "bridgeme")
	case "pebble":
		ps, err := kv.NewPebbleStore(cfg.PebblePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.PebblePath).Msg("❌ Failed to open pebble store")
		}
		store = ps
		closeFn = func() {
			if err := ps.Close(); err != nil {
				logger.Error().Err(err).Msg("pebble close")
			}
		}
	default:
		store = kv.NewMemoryStore()
	}
	logger.Info().Str("backend", cfg.KVBackend).Msg("✅ Document store ready")
	return kv.WithQuota(store, cfg.KVMaxValueBytes), closeFn
}

func sweepLimiter(ctx context.Context, rl *myMiddleware.RateLimiter) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rl.Sweep(10 * time.Minute)
		}
	}
}

// serveMemoryObject exposes uploads kept in memory when no bucket is configured.
func serveMemoryObject(store *media.MemoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		obj, ok := store.Get(chi.URLParam(r, "*"))
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", obj.ContentType)
		w.Write(obj.Data)
	}
}
