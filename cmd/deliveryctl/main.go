// Package main is the entrypoint for deliveryctl, the reading room
// administration CLI. It works directly against the delivery database.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/config"
	"github.com/socialhistoryservices/delivery/internal/db"
	"github.com/socialhistoryservices/delivery/internal/delivery"
	"github.com/socialhistoryservices/delivery/internal/notifications"
	"github.com/socialhistoryservices/delivery/internal/storage"
	"github.com/spf13/cobra"
)

// Build-time variables set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// app carries what every subcommand shares.
type app struct {
	dbURL   string
	verbose bool
	logger  zerolog.Logger
	cfg     config.ServerConfig
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "deliveryctl",
		Short: "Reading room delivery administration",
		Long: `deliveryctl manages the delivery database: schema migrations,
scanner API keys, desk scans, request status changes and the payment jobs.

Settings are read from the environment and an optional .env file.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			level := zerolog.InfoLevel
			if a.verbose {
				level = zerolog.DebugLevel
			}
			a.logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
				Level(level).
				With().
				Timestamp().
				Logger()
			a.cfg = config.LoadServerConfig()
			if a.dbURL == "" {
				a.dbURL = a.cfg.DatabaseURL
			}
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.dbURL, "db", "", "Database URL (or set DATABASE_URL env var)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newMigrateCmd(a),
		newAPIKeyCmd(a),
		newScanCmd(a),
		newStatusCmd(a, "reservation"),
		newStatusCmd(a, "reproduction"),
		newJobsCmd(a),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("deliveryctl %s\n", Version)
			fmt.Printf("  Commit:     %s\n", Commit)
			fmt.Printf("  Build Date: %s\n", BuildDate)
		},
	}
}

// open connects to the database with a small pool.
func (a *app) open(ctx context.Context) (*db.DB, error) {
	if a.dbURL == "" {
		return nil, fmt.Errorf("database URL required: use --db or set DATABASE_URL")
	}
	cfg := db.DefaultConfig(a.dbURL)
	cfg.MaxConns = 5
	cfg.MinConns = 1
	return db.New(ctx, cfg, a.logger)
}

// service builds the reconciliation service with mail and download links
// configured like the server. There is no live feed outside the server.
func (a *app) service(database *db.DB) (*delivery.Service, error) {
	var opts []delivery.Option
	if a.cfg.SMTP.Host != "" {
		var subjects map[string]string
		if a.cfg.RoleFile != "" {
			rf, err := config.LoadRoleFile(a.cfg.RoleFile)
			if err != nil {
				return nil, err
			}
			subjects = rf.MailSubjects
		}
		mailer, err := notifications.NewEmailService(notifications.SMTPConfig{
			Host:     a.cfg.SMTP.Host,
			Port:     a.cfg.SMTP.Port,
			Username: a.cfg.SMTP.Username,
			Password: a.cfg.SMTP.Password,
			From:     a.cfg.SMTP.From,
			FromName: a.cfg.SMTP.FromName,
			TLS:      a.cfg.SMTP.UseTLS,
		}, a.cfg.BaseURL, subjects, a.logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, delivery.WithNotifier(mailer))
	}
	opts = append(opts, delivery.WithLinkSigner(storage.OrderPageSigner{BaseURL: a.cfg.BaseURL}))
	return delivery.NewService(database, a.logger, opts...), nil
}

// withDB runs fn with an open database and a command timeout.
func (a *app) withDB(timeout time.Duration, fn func(ctx context.Context, database *db.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	database, err := a.open(ctx)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	return fn(ctx, database)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
