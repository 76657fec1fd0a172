package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/campuslink/chat-service/internal/auth"
	"github.com/campuslink/chat-service/internal/conversation"
	"github.com/campuslink/chat-service/internal/gateway"
	"github.com/campuslink/chat-service/internal/messaging"
	"github.com/campuslink/chat-service/internal/presence"
	"github.com/campuslink/chat-service/internal/ratelimit"
	"github.com/campuslink/chat-service/internal/registry"
	"github.com/campuslink/chat-service/internal/social"
	"github.com/campuslink/chat-service/internal/storage"
	"github.com/campuslink/chat-service/internal/ws"
)

func main() {
	// Local development reads .env; in deployment the variables come from
	// the environment and the file is absent.
	_ = godotenv.Load()

	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	migrationsDir := "migrations"
	if v := os.Getenv("MIGRATIONS_DIR"); v != "" {
		migrationsDir = v
	}

	serverName, _ := os.Hostname()
	if v := os.Getenv("SERVER_NAME"); v != "" {
		serverName = v
	}
	if serverName == "" {
		serverName = "chat-1"
	}

	// --- PostgreSQL ---
	db, err := storage.Open(databaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	if err := storage.Migrate(db, migrationsDir); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	// --- Redis (optional: presence and rate limiting) ---
	var (
		presenceStore *presence.Store
		limiter       *ratelimit.Limiter
	)
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr != "" {
		presenceStore, err = presence.NewStore(redisAddr, serverName)
		if err != nil {
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		limiter = ratelimit.NewLimiter(presenceStore.Client())
	}

	// --- NATS (optional: cross-instance room relay) ---
	var relay *messaging.Relay
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		relayConfig := messaging.DefaultRelayConfig()
		relayConfig.URL = natsURL
		relayConfig.Name = serverName
		relay, err = messaging.NewRelay(relayConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	log.Printf("CampusLink chat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  redis_addr:      %s", redisAddr)
	log.Printf("  server_name:     %s", serverName)

	sessions := registry.New()
	dispatcher := ws.NewMessageDispatcher(nil)
	server := ws.NewServer(config, dispatcher.Dispatch)
	dispatcher.SetServer(server)

	conversations := conversation.NewStore(db)
	gatewayConfig := gateway.Config{
		Verifier: auth.NewVerifier(jwtSecret),
		Guard:    social.NewGuard(social.NewFollowStore(db)),
		Resolver: conversation.NewResolver(conversations),
		Messages: conversations,
		Registry: sessions,
		Sender:   server,
	}
	if limiter != nil {
		gatewayConfig.Limiter = limiter
	}
	if presenceStore != nil {
		gatewayConfig.Presence = presenceStore
	}
	if relay != nil {
		gatewayConfig.Relay = relay
	}
	gw := gateway.New(gatewayConfig)

	gw.Register(dispatcher)
	server.SetOnConnect(gw.Connected)
	server.SetOnDisconnect(gw.Disconnected)

	if relay != nil {
		if err := relay.SubscribeRooms(gw.DeliverRemote); err != nil {
			log.Fatalf("failed to subscribe to room relay: %v", err)
		}
	}

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if relay != nil {
			relay.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if presenceStore != nil {
			if err := presenceStore.Close(); err != nil {
				log.Printf("presence store close error: %v", err)
			}
		}
		if err := db.Close(); err != nil {
			log.Printf("database close error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
