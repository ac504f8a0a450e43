package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nivlheim/nivlheim/internal/api"
	"github.com/nivlheim/nivlheim/internal/ca"
	"github.com/nivlheim/nivlheim/internal/config"
	"github.com/nivlheim/nivlheim/internal/db"
	"github.com/nivlheim/nivlheim/internal/db/repository"
	"github.com/nivlheim/nivlheim/internal/enroll"
	"github.com/nivlheim/nivlheim/internal/ingest"
	"github.com/nivlheim/nivlheim/internal/session"
)

var (
	// Version information (set via ldflags)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "/etc/nivlheim/config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Nivlheim Server\n")
		fmt.Printf("Version:    %s\n", Version)
		fmt.Printf("Commit:     %s\n", Commit)
		fmt.Printf("Build Time: %s\n", BuildTime)
		os.Exit(0)
	}

	log.Printf("Starting Nivlheim Server %s (commit: %s)", Version, Commit)

	// Load configuration
	log.Printf("Loading configuration from %s", *configPath)
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database
	log.Printf("Connecting to database: %s", cfg.Database.Path)
	database, err := db.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	log.Printf("Running database migrations...")
	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Load CA key pair
	log.Printf("Loading CA key pair from %s", cfg.CA.CertPath)
	keyPair, err := ca.LoadKeyPair(cfg.CA.CertPath, cfg.CA.KeyPath)
	if err != nil {
		log.Fatalf("Failed to load CA key pair: %v", err)
	}

	issuer := ca.NewIssuer(keyPair, cfg.CA.SerialPath, cfg.CALockPath(), cfg.GetCertValidityDuration())

	// Initialize repositories
	certRepo := repository.NewCertRepository(database.DB)
	waitingRepo := repository.NewWaitingRepository(database.DB)
	ipRangeRepo := repository.NewIPRangeRepository(database.DB)
	hostInfoRepo := repository.NewHostInfoRepository(database.DB)
	fileRepo := repository.NewFileRepository(database.DB)

	// Initialize services
	enroller := enroll.New(issuer, keyPair.Cert, certRepo, waitingRepo, ipRangeRepo, hostInfoRepo, nil)
	guard := session.NewGuard(certRepo, hostInfoRepo)
	ingestor := ingest.NewIngestor(database, fileRepo, hostInfoRepo, cfg.Ingest.QueueDir)

	// Create HTTP server
	server := api.NewServer(cfg, enroller, guard, ingestor)

	// Setup graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.Server.ListenAddr)
		if err := server.Run(); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Nivlheim Server is running")

	// Wait for interrupt signal
	<-quit
	log.Printf("Shutting down server...")

	// Cleanup
	database.Close()

	log.Printf("Server stopped")
}
