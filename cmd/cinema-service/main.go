package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	gorillahandlers "github.com/gorilla/handlers"

	"github.com/filmclub/cinema-service/internal/cache"
	"github.com/filmclub/cinema-service/internal/cleanup"
	"github.com/filmclub/cinema-service/internal/config"
	"github.com/filmclub/cinema-service/internal/events"
	"github.com/filmclub/cinema-service/internal/http/handlers/cinema"
	"github.com/filmclub/cinema-service/internal/http/handlers/gallery"
	"github.com/filmclub/cinema-service/internal/http/handlers/media"
	roomshttp "github.com/filmclub/cinema-service/internal/http/handlers/rooms"
	"github.com/filmclub/cinema-service/internal/http/handlers/users"
	"github.com/filmclub/cinema-service/internal/http/middleware"
	"github.com/filmclub/cinema-service/internal/rooms"
	"github.com/filmclub/cinema-service/internal/services/cloudinary"
	"github.com/filmclub/cinema-service/internal/session"
	"github.com/filmclub/cinema-service/internal/storage"
	"github.com/filmclub/cinema-service/internal/storage/file"
	"github.com/filmclub/cinema-service/internal/storage/postgres"
)

func main() {
	// load config
	cfg := config.MustLoad()

	// storage setup
	var backend storage.Backend
	switch cfg.Store.Backend {
	case "postgres":
		pg, err := postgres.New(cfg.Store.Postgres)
		if err != nil {
			log.Fatal("Failed to initialize database:", err)
		}
		defer pg.Close()
		backend = pg
		slog.Info("Connected to Postgres snapshot store")
	default:
		backend = file.New(cfg.Store.FilePath)
		slog.Info("Using file snapshot store", slog.String("path", cfg.Store.FilePath))
	}

	store, err := storage.Open(backend)
	if err != nil {
		log.Fatal("Failed to open store:", err)
	}

	// redis is optional; without it rate limiting and caching pass through
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			slog.Warn("Redis unreachable, rate limiting and caching disabled", slog.String("error", err.Error()))
			redisClient = nil
		} else {
			slog.Info("Connected to Redis", slog.String("address", cfg.Redis.Address))
		}
	}

	auth := session.NewAuthority(store, cfg.JWTSecret)
	cloud := cloudinary.New(cfg.Cloudinary)
	engine := cleanup.NewEngine(store, cloud, slog.Default())
	hub := rooms.NewHub(slog.Default())
	publisher := events.NewEventPublisher(hub)
	cacheService := cache.NewService(store, redisClient)
	rateLimits := middleware.NewRateLimitConfig(redisClient)
	mediaHandlers := media.NewMediaHandlers(cloud, auth, cfg.AdminKey)

	// background reclamation of expired events
	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	defer stopSweeps()
	go engine.Run(sweepCtx, time.Duration(cfg.Cleanup.IntervalSeconds)*time.Second)

	adminOnly := middleware.AdminOnly(cfg.AdminKey)
	userAuth := middleware.UserAuth(auth)

	// setup server
	router := http.NewServeMux()

	router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	router.HandleFunc("GET /api/cinema/current", cinema.Current(cacheService))
	router.HandleFunc("GET /api/cinema/events", cinema.List(store))
	router.Handle("POST /api/cinema/events", adminOnly(cinema.Create(store, cacheService, publisher)))

	router.Handle("POST /api/users/session/bootstrap",
		rateLimits.RateLimitMiddleware(middleware.ActionBootstrap)(users.Bootstrap(auth)))
	router.HandleFunc("POST /api/users/profile-sync", users.ProfileSync(auth, store))
	router.HandleFunc("GET /api/users/{id}/movie-state", users.MovieState(auth, store))
	router.Handle("POST /api/users/{id}/movie-state/toggle", userAuth(users.Toggle(store)))
	router.Handle("POST /api/users/{id}/movie-state/watched", userAuth(users.Watched(store)))
	router.Handle("POST /api/users/{id}/movie-state/rating", userAuth(users.Rating(store)))
	router.Handle("POST /api/users/{id}/movie-state/privacy", userAuth(users.Privacy(store)))
	router.Handle("POST /api/users/{id}/follow", userAuth(users.Follow(store)))
	router.Handle("DELETE /api/users/{id}/follow", userAuth(users.Unfollow(store)))

	router.HandleFunc("GET /api/gallery", gallery.List(cacheService))
	router.HandleFunc("POST /api/gallery", gallery.Create(store, cacheService, auth, cfg.AdminKey))
	router.HandleFunc("POST /api/gallery/{id}/toggle-like", gallery.ToggleLike(store, cacheService, auth))
	router.HandleFunc("POST /api/gallery/{id}/toggle-favorite", gallery.ToggleFavorite(store, cacheService, auth))
	router.HandleFunc("GET /api/gallery/{id}/comments", gallery.Comments(store))
	router.Handle("POST /api/gallery/{id}/comments",
		rateLimits.RateLimitMiddleware(middleware.ActionComments)(gallery.PostComment(store, auth)))

	router.HandleFunc("POST /api/media/cloudinary/sign-upload", mediaHandlers.SignUpload())
	router.HandleFunc("POST /api/media/cloudinary/delete-image", mediaHandlers.DeleteImage())

	router.Handle("GET /api/admin/cinema/cleanup-status", adminOnly(cinema.CleanupStatus(engine)))
	router.Handle("GET /api/admin/cache/stats", adminOnly(cache.GetCacheStats(redisClient)))
	router.Handle("POST /api/admin/cache/clear", adminOnly(cache.ClearCache(redisClient)))

	router.HandleFunc("GET /ws", roomshttp.WebSocketHandler(hub, auth, store))

	// wrap the router: CORS and access logging outermost, opportunistic
	// cleanup sweeps on every request inside
	handler := middleware.SweepTrigger(engine)(router)
	handler = gorillahandlers.CORS(
		gorillahandlers.AllowedOrigins([]string{"*"}),
		gorillahandlers.AllowedMethods([]string{"GET", "POST", "DELETE", "OPTIONS"}),
		gorillahandlers.AllowedHeaders([]string{"Content-Type", middleware.UserTokenHeader, middleware.AdminKeyHeader}),
	)(handler)
	handler = gorillahandlers.LoggingHandler(os.Stdout, handler)

	server := http.Server{
		Addr:    cfg.HTTPServer.Address,
		Handler: handler,
	}

	log.Println("server started on", cfg.HTTPServer.Address)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		err := server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %s", err)
		}
	}()

	<-done

	slog.Info("Shutting down server...")
	stopSweeps()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = server.Shutdown(ctx)
	if err != nil {
		slog.Error("failed to gracefully shutdown server", slog.String("error", err.Error()))
		return
	}

	slog.Info("Server stopped")
}
