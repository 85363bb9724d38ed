package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fairlens/escrow-engine/internal/config"
	"github.com/fairlens/escrow-engine/internal/confirm"
	"github.com/fairlens/escrow-engine/internal/escrow"
	"github.com/fairlens/escrow-engine/internal/facade"
	"github.com/fairlens/escrow-engine/internal/ledger"
	"github.com/fairlens/escrow-engine/internal/metrics"
	"github.com/fairlens/escrow-engine/internal/notify"
	"github.com/fairlens/escrow-engine/internal/query"
	"github.com/fairlens/escrow-engine/internal/server"
	"github.com/fairlens/escrow-engine/internal/storage"
	"github.com/fairlens/escrow-engine/internal/txbuilder"
	"github.com/fairlens/escrow-engine/internal/wallet"
	"github.com/fairlens/escrow-engine/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// faucetBalance seeds the wallet account on the embedded ledger so contract
// deployments can be funded out of the box.
const faucetBalance = 1_000_000_000_000

// Application wires the escrow engine together
type Application struct {
	config      *config.Config
	logger      *logrus.Logger
	ledger      *ledger.EmbeddedLedger
	nodeManager *ledger.NodeManager
	wallet      *wallet.LocalSigner
	storage     storage.Storage
	notifier    *notify.Manager
	registry    *prometheus.Registry
	metrics     *metrics.PrometheusMetrics
	facade      *facade.Facade
	query       *query.Service
	server      *server.HTTPServer
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	app.registry = prometheus.NewRegistry()
	app.metrics = metrics.NewPrometheusMetrics(app.registry)

	if err := app.initializeLedger(); err != nil {
		return fmt.Errorf("failed to initialize ledger: %w", err)
	}

	if err := app.initializeWallet(); err != nil {
		return fmt.Errorf("failed to initialize wallet: %w", err)
	}

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeNotifications(); err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	app.initializeFacade()

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeLedger initializes the embedded ledger and its manager
func (app *Application) initializeLedger() error {
	app.logger.Info("Initializing embedded ledger")

	machine := escrow.NewMachine(escrow.MachineConfig{
		VerifierTimelock: app.config.Escrow.VerifierTimelock,
		AnyPartyRelease:  app.config.Escrow.AnyPartyRelease,
	})

	app.ledger = ledger.NewEmbeddedLedger(app.config.Ledger.GenesisID, machine)
	app.ledger.SetAutoConfirm(app.config.Ledger.AutoConfirm)
	app.nodeManager = ledger.NewNodeManager(app.ledger, app.config.Ledger.HealthInterval)

	if err := app.nodeManager.HealthCheck(app.ctx); err != nil {
		return err
	}

	app.logger.WithField("genesis_id", app.config.Ledger.GenesisID).Info("Embedded ledger initialized")
	return nil
}

// initializeWallet loads or generates the signing key and opens a session
func (app *Application) initializeWallet() error {
	app.logger.Info("Initializing wallet")

	key, err := loadOrGenerateKey(app.config.Wallet.KeyFile)
	if err != nil {
		return err
	}

	app.wallet = wallet.NewLocalSigner(key, app.config.Wallet.SessionTTL, wallet.AutoApprover{})
	address, err := app.wallet.Connect(app.ctx)
	if err != nil {
		return err
	}

	// Simulation faucet: the wallet account needs a balance to fund escrows.
	app.ledger.Fund(address, faucetBalance)

	app.logger.WithField("address", address).Info("Wallet initialized")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	storageCfg := &storage.Config{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	}

	store, err := storage.NewStorage(storageCfg)
	if err != nil {
		return err
	}

	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		return err
	}

	app.storage = store
	app.logger.WithField("type", app.config.Storage.Type).Info("Storage layer initialized")
	return nil
}

// initializeNotifications initializes the notification manager
func (app *Application) initializeNotifications() error {
	app.logger.Info("Initializing notification manager")

	app.notifier = notify.NewManager(&notify.Config{
		Enabled:       app.config.Notifications.Enabled,
		QueueSize:     app.config.Notifications.QueueSize,
		Workers:       app.config.Notifications.Workers,
		RetryAttempts: app.config.Notifications.RetryAttempts,
		RetryDelay:    app.config.Notifications.RetryDelay,
		MaxRetryDelay: app.config.Notifications.MaxRetryDelay,
	})

	if err := app.notifier.AddChannel(notify.NewLogChannel()); err != nil {
		return err
	}
	if url := app.config.Notifications.WebhookURL; url != "" {
		webhook, err := notify.NewWebhookChannel(&notify.WebhookConfig{
			URL:     url,
			Timeout: app.config.Notifications.WebhookTimeout,
		})
		if err != nil {
			return err
		}
		if err := app.notifier.AddChannel(webhook); err != nil {
			return err
		}
	}

	return app.notifier.Start(app.ctx)
}

// initializeFacade wires the operation pipeline
func (app *Application) initializeFacade() {
	machine := escrow.NewMachine(escrow.MachineConfig{
		VerifierTimelock: app.config.Escrow.VerifierTimelock,
		AnyPartyRelease:  app.config.Escrow.AnyPartyRelease,
	})

	submitter := confirm.NewSubmitter(app.ledger, confirm.Config{
		PollInterval:  app.config.Confirmation.PollInterval,
		MaxPolls:      app.config.Confirmation.MaxPolls,
		RetryAttempts: app.config.Confirmation.RetryAttempts,
		RetryDelay:    app.config.Confirmation.RetryDelay,
		MaxRetryDelay: app.config.Confirmation.MaxRetryDelay,
	})

	app.facade = facade.New(facade.Options{
		Machine:   machine,
		Builder:   txbuilder.NewBuilder(app.ledger),
		Wallet:    app.wallet,
		Deployer:  app.ledger,
		State:     app.ledger,
		Submitter: submitter,
		Store:     app.storage,
		Notifier:  app.notifier,
		Metrics:   app.metrics,
	})
	app.query = query.NewService(app.storage)
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.Config{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	app.server = server.NewHTTPServer(
		serverCfg,
		app.facade,
		app.query,
		app.storage,
		app.nodeManager,
		app.notifier,
		app.metrics,
		app.registry,
	)

	app.logger.Info("HTTP server initialized")
	return nil
}

// Start starts the application
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting FairLens escrow engine")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	app.logger.WithField("server_address",
		fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
	).Info("FairLens escrow engine started")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping FairLens escrow engine")

	app.cancel()

	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.notifier != nil {
		if err := app.notifier.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop notification manager")
		}
	}

	if app.wallet != nil {
		if err := app.wallet.Disconnect(); err != nil {
			app.logger.WithError(err).Error("Failed to disconnect wallet")
		}
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}

	app.logger.Info("FairLens escrow engine stopped")
	return nil
}

// loadOrGenerateKey reads a hex-encoded ed25519 seed from keyFile, or
// generates a fresh key (persisting it when a path is configured).
func loadOrGenerateKey(keyFile string) (ed25519.PrivateKey, error) {
	if keyFile != "" {
		if raw, err := os.ReadFile(keyFile); err == nil {
			seed, err := hex.DecodeString(strings.TrimSpace(string(raw)))
			if err != nil {
				return nil, fmt.Errorf("key file is not valid hex: %w", err)
			}
			if len(seed) != ed25519.SeedSize {
				return nil, fmt.Errorf("key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
			}
			return ed25519.NewKeyFromSeed(seed), nil
		}
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	if keyFile != "" {
		seed := hex.EncodeToString(key.Seed())
		if err := os.WriteFile(keyFile, []byte(seed+"\n"), 0600); err != nil {
			return nil, fmt.Errorf("failed to persist signing key: %w", err)
		}
	}

	return key, nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "escrowd",
	Short:   "FairLens milestone escrow engine",
	Long:    `Milestone-based escrow engine for government construction procurement: locked funds release per verified milestone through a transparent, auditable state machine.`,
	Version: AppVersion,
	RunE:    runEngine,
}

// runEngine is the main command to run the escrow engine
func runEngine(cmd *cobra.Command, args []string) error {
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("FairLens Escrow Engine %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Genesis: %s\n", cfg.Ledger.GenesisID)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Verifier timelock: %s\n", cfg.Escrow.VerifierTimelock)

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing FairLens escrow engine setup...")

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&storage.Config{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		fmt.Printf("Testing ledger (%s)...\n", cfg.Ledger.GenesisID)
		machine := escrow.NewMachine(escrow.DefaultMachineConfig())
		node := ledger.NewEmbeddedLedger(cfg.Ledger.GenesisID, machine)
		if _, err := node.Status(context.Background()); err != nil {
			return fmt.Errorf("ledger status check failed: %w", err)
		}
		fmt.Println("✓ Ledger available")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")

	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
