package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-backend/internal/archive"
	"fleet-backend/internal/auth"
	"fleet-backend/internal/cache"
	"fleet-backend/internal/config"
	"fleet-backend/internal/database"
	"fleet-backend/internal/db"
	"fleet-backend/internal/handlers"
	"fleet-backend/internal/health"
	h "fleet-backend/internal/http"
	"fleet-backend/internal/middleware"
	"fleet-backend/internal/realtime"
	"fleet-backend/internal/repositories"
	"fleet-backend/internal/services"
	"fleet-backend/internal/timeutil"
	"fleet-backend/migrations"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	store := flag.String("store", "", "Storage driver: postgres or memory (overrides config)")
	port := flag.Int("port", 0, "Server port (overrides config)")
	flag.Parse()

	// Load configuration
	cfg := config.LoadFile(*configPath)
	if *store != "" {
		cfg.Store.Driver = *store
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	timeutil.SetLocation(cfg.Server.Timezone)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage: postgres with embedded migrations, or in-memory for local runs
	var (
		pool          *pgxpool.Pool
		paymentStore  services.PaymentStore
		deliveryStore services.DeliveryStore
	)
	switch cfg.Store.Driver {
	case config.StorePostgres:
		var err error
		pool, err = db.Connect(ctx, cfg)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		log.Printf("Connected to database: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

		log.Println("Running database migrations...")
		migrator := database.NewMigratorWithFS(pool, migrations.FS, ".")
		migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		err = migrator.RunMigrations(migrateCtx)
		cancel()
		if err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}

		paymentStore = repositories.NewRentalPaymentRepository(pool)
		deliveryStore = repositories.NewWebhookDeliveryRepository(pool)
	case config.StoreMemory:
		log.Println("[Store] Using in-memory store, data is lost on restart")
		paymentStore = repositories.NewMemoryPaymentStore()
		deliveryStore = repositories.NewMemoryDeliveryStore()
	default:
		log.Fatalf("Unknown store driver %q (want %s or %s)", cfg.Store.Driver, config.StorePostgres, config.StoreMemory)
	}

	// Initialize Redis cache (optional - graceful fallback if unavailable)
	redisUp := false
	if cfg.Redis.Enabled {
		if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			log.Printf("[Redis] Cache unavailable: %v (statistics computed on every request)", err)
		} else {
			redisUp = true
			log.Println("[Redis] Cache connected successfully")
		}
		defer cache.Close()
	}

	tolerance, err := cfg.AmountTolerance()
	if err != nil {
		log.Fatalf("Invalid webhook amount tolerance: %v", err)
	}

	// Ledger and its subscribers
	ledger := services.NewPaymentLedger(paymentStore, services.AmountPolicy{
		Enabled:   cfg.Webhook.AmountMatching,
		Tolerance: tolerance,
	})
	hub := realtime.NewHub(cfg.Server.CorsAllowedOrigins)
	ledger.AddPublisher(hub)
	if redisUp {
		ledger.SetStatisticsCache(cache.NewPaymentStatisticsCache())
	}

	// Delivery audit, with raw payload archiving when a bucket is configured
	auditService := services.NewDeliveryAuditService(deliveryStore)
	if cfg.Archive.Enabled {
		archiver, err := archive.NewR2Archiver(ctx, cfg.ArchiveOptions())
		if err != nil {
			log.Printf("[Archive] Disabled: %v", err)
		} else {
			auditService.SetArchiver(archiver)
			log.Printf("[Archive] Rejected payloads archived to bucket %s", cfg.Archive.Bucket)
		}
	}

	processor := services.NewWebhookProcessor(ledger, cfg.Webhook.Secret)
	processor.SetDeliveryRecorder(auditService)
	processor.AddNotifier(hub)

	receiptService := services.NewReceiptService(ledger)

	// Handlers
	healthChecker := health.NewHealthChecker(healthPinger(pool), cfg.Store.Driver, cfg.Redis.Enabled)
	authMiddleware := middleware.NewAuthMiddleware(auth.NewTokenValidator(cfg.JWT.Secret, cfg.JWT.Issuer))

	router := h.NewRouter(
		handlers.NewPaymentHandler(ledger, receiptService),
		handlers.NewWebhookHandler(processor, cfg.Webhook.SignatureHeader),
		handlers.NewDeliveryHandler(auditService),
		handlers.NewAlertHandler(hub),
		handlers.NewHealthHandler(healthChecker),
		hub,
		authMiddleware,
	)
	corsMiddleware := middleware.NewCORS(cfg)

	go hub.Run(ctx)
	if pool != nil {
		go hub.WatchDatabase(ctx, pool.Ping, 15*time.Second)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           corsMiddleware(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("Server running on %s (store: %s)", addr, cfg.Store.Driver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Println("Server stopped")
}

// healthPinger keeps a nil pool from becoming a non-nil interface
func healthPinger(pool *pgxpool.Pool) health.Pinger {
	if pool == nil {
		return nil
	}
	return pool
}
