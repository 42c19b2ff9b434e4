// Command server starts the soundmesh synchronization hub.
//
// The hub itself needs nothing but a port. With DATABASE_URL set it also
// seeds its state from the durable session record and writes snapshots back
// after every merge; with REDIS_ADDR set as well it exposes the login and
// presence collaborator endpoints.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/Tyrowin/soundmesh/internal/auth"
	"github.com/Tyrowin/soundmesh/internal/presence"
	"github.com/Tyrowin/soundmesh/internal/server"
	"github.com/Tyrowin/soundmesh/internal/session"
	"github.com/Tyrowin/soundmesh/internal/state"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env file is fine; the environment still applies.
	_ = godotenv.Load()

	cfg := server.NewConfigFromEnv()
	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Unable to connect to database: %v", err)
		}
		defer pool.Close()
		log.Println("Connected to PostgreSQL")
	}

	store, sessions := buildStateStore(ctx, cfg, pool)

	hub := server.NewHub(store)
	if sessions != nil {
		name := cfg.SessionName
		hub.SetPersistFunc(func(snapshot []byte) {
			saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := sessions.Save(saveCtx, name, snapshot); err != nil {
				log.Printf("Write-through for session %q failed: %v", name, err)
			}
		})
	}

	srv := server.NewServer(*cfg, hub)
	srv.StartHub()

	router := srv.SetupRoutes()
	registerCollaborators(ctx, cfg, pool, sessions, router)

	httpServer := server.CreateServer(cfg.Port, router)

	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
}

// buildStateStore seeds the hub state from the durable session record when a
// database is configured and a record exists; otherwise the hub starts from
// the hard-coded defaults.
func buildStateStore(ctx context.Context, cfg *server.Config, pool *pgxpool.Pool) (*state.Store, *session.Store) {
	if pool == nil {
		return state.NewStore(), nil
	}

	sessions := session.NewStore(pool)
	if err := sessions.EnsureSchema(ctx); err != nil {
		log.Fatalf("Session schema setup failed: %v", err)
	}

	snapshot, version, err := sessions.Load(ctx, cfg.SessionName)
	switch {
	case errors.Is(err, session.ErrNotFound):
		log.Printf("No durable record for session %q; starting from defaults", cfg.SessionName)
		return state.NewStore(), sessions
	case err != nil:
		log.Fatalf("Loading session %q failed: %v", cfg.SessionName, err)
	}

	store, err := state.NewStoreFrom(snapshot)
	if err != nil {
		log.Printf("Stored snapshot for session %q is unusable (%v); starting from defaults", cfg.SessionName, err)
		return state.NewStore(), sessions
	}
	log.Printf("Seeded session %q from durable record (version %d)", cfg.SessionName, version)
	return store, sessions
}

// registerCollaborators wires the account, login/logout, and presence
// endpoints when both backing stores are configured. The hub's own endpoints
// never require them.
func registerCollaborators(ctx context.Context, cfg *server.Config, pool *pgxpool.Pool, sessions *session.Store, router *mux.Router) {
	if pool == nil || cfg.RedisAddr == "" {
		log.Println("Login/presence endpoints disabled (DATABASE_URL and REDIS_ADDR both required)")
		return
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Could not connect to Redis: %v", err)
	}
	log.Println("Connected to Redis")

	users := auth.NewUserStore(pool)
	if err := users.EnsureSchema(ctx); err != nil {
		log.Fatalf("User schema setup failed: %v", err)
	}
	presenceStore := presence.NewStore(pool, sessions)
	if err := presenceStore.EnsureSchema(ctx); err != nil {
		log.Fatalf("Presence schema setup failed: %v", err)
	}

	authHandler := auth.NewHandler(users, auth.NewTokenStore(rdb, cfg.TokenTTL))
	authHandler.Register(router)
	presence.NewHandler(presenceStore).Register(router, authHandler.Middleware)
}
