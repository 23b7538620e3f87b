package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/busybox42/formrelay/internal/api"
	"github.com/busybox42/formrelay/internal/attachment"
	"github.com/busybox42/formrelay/internal/config"
	"github.com/busybox42/formrelay/internal/delivery"
	"github.com/busybox42/formrelay/internal/logging"
)

var (
	configPath string
	version    = "dev"
	commit     = "unknown"
	date       = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "formrelay",
		Short: "Formrelay - form submission to email relay",
		Long: `Formrelay accepts website form submissions (contact, quote and
newsletter forms), validates them, and relays each one as an email to a fixed
recipient over SMTP with a primary and fallback transport.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the form relay server",
	RunE:  runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Formrelay %s\n", cmd.Root().Version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

func init() {
	serverCmd.Flags().String("listen", "", "HTTP listen address (overrides config)")

	configCmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Generate default configuration file",
		RunE:  generateConfig,
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE:  validateConfig,
	})
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	if err := cfg.EnsureUploadDirectory(); err != nil {
		return err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	primaryCfg, fallbackCfg := cfg.Transports()
	primary := delivery.NewSMTPTransport("primary", primaryCfg, hostname)
	fallback := delivery.NewSMTPTransport("fallback", fallbackCfg, hostname)

	pipeline := delivery.NewPipeline(delivery.Config{
		Sender:         cfg.Email.Sender,
		Recipient:      cfg.Email.Recipient,
		AttemptTimeout: cfg.AttemptTimeout(),
	}, primary, fallback)

	resolver := attachment.NewResolver(cfg.Upload.Dir)

	server := api.NewServer(api.Config{
		ListenAddr: cfg.Server.Listen,
		WebRoot:    cfg.Server.WebRoot,
		RateLimit: api.RateLimitConfig{
			Enabled:           cfg.RateLimit.Enabled,
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		},
		CORS: api.CORSConfig{
			Enabled:        len(cfg.Server.AllowedOrigins) > 0,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
	}, pipeline, resolver)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		logger.Info("Formrelay started",
			"listen", cfg.Server.Listen,
			"recipient", cfg.Email.Recipient,
			"environment", cfg.Server.Environment,
		)
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Shutting down")
	return server.Stop()
}

func generateConfig(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = "./formrelay.conf"
	}

	cfg := config.DefaultConfig()
	if err := cfg.SaveConfig(path); err != nil {
		return err
	}

	fmt.Printf("Wrote default configuration to %s\n", path)
	return nil
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	primary, fallback := cfg.Transports()
	fmt.Println("Configuration OK")
	fmt.Printf("  listen:    %s\n", cfg.Server.Listen)
	fmt.Printf("  primary:   %s (implicit TLS: %t)\n", primary.Addr(), primary.ImplicitTLS)
	fmt.Printf("  fallback:  %s (implicit TLS: %t)\n", fallback.Addr(), fallback.ImplicitTLS)
	fmt.Printf("  recipient: %s\n", cfg.Email.Recipient)
	return nil
}
