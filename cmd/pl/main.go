package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"partnerline/internal/app"
	"partnerline/internal/config"
	"partnerline/internal/db"
	"partnerline/internal/domain"
	"partnerline/internal/engine"
	"partnerline/internal/migrate"
	"partnerline/internal/repo"
)

var rootCmd = &cobra.Command{
	Use:   "pl",
	Short: "Partnerline CLI",
	Long: `Partnerline negotiates partnership proposals between businesses.
Core concepts:
- Workspace: the .partnerline directory holding the SQLite database; partnerline.yml next to it overrides the stored config.
- Business: a directory entry that can send and receive proposals (pl business add).
- Proposal: terms one business sends another; it is awaiting_recipient, under_negotiation, or closed as accepted, declined, cancelled or expired.
- Negotiation: either party may submit revised content; the turn then passes to the other party, who alone may accept or decline.
- Thread: every action appends a message; chat messages never change status.
- Moderation: participants may report a proposal or block the counterparty; moderators read reports and the event log.
- Event log: every change is recorded, view with 'pl log tail' or deliver with webhooks from 'pl serve'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func initConfig() {
	viper.SetEnvPrefix("PARTNERLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Process environment wins over the workspace .env file.
	envFile := filepath.Join(viper.GetString("workspace"), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %s: %v\n", envFile, err)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "", "acting business id (empty acts as the local operator)")
	flags.String("actor-name", "", "display name recorded on thread messages")
	flags.BoolP("verbose", "v", false, "debug logging")
	for _, name := range []string{"workspace", "json", "actor-id", "actor-name", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(businessCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(rbacCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// exitCode distinguishes error kinds for scripts.
func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return 2
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrUnauthorized):
		return 3
	case errors.Is(err, domain.ErrNotFound):
		return 4
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		return 5
	case errors.Is(err, domain.ErrUnavailable):
		return 6
	}
	return 1
}

// actorID returns the acting business. Commands that require one fail with
// Unauthorized when it is empty.
func actorID() string {
	return strings.TrimSpace(viper.GetString("actor-id"))
}

func actorName() string {
	return strings.TrimSpace(viper.GetString("actor-name"))
}

// operator is the actor for administrative commands; the local operator acts
// as the system actor.
func operator() string {
	if id := actorID(); id != "" {
		return id
	}
	return engine.SystemActor
}

type runtime struct {
	Engine engine.Engine
	Source app.Source
	Log    *zap.Logger
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withRuntime(ctx, func(ctx context.Context, rt runtime) error {
		return fn(ctx, rt.Engine)
	})
}

func withRuntime(ctx context.Context, fn func(context.Context, runtime) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(ctx, conn); err != nil {
		return err
	}
	cfg, source, err := app.ResolveConfig(ctx, workspace, repo.Repo{DB: conn})
	if err != nil {
		return err
	}
	log, err := app.NewLogger(cfg, viper.GetBool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()
	return fn(ctx, runtime{Engine: engine.New(conn, cfg, log), Source: source, Log: log})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readContent loads a ProposalContent document from path, or stdin for "-".
func readContent(path string) (domain.ProposalContent, error) {
	var c domain.ProposalContent
	if path == "" {
		return c, fmt.Errorf("--content required (path to JSON, or - for stdin)")
	}
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse content %s: %w", path, err)
	}
	return c, nil
}

func loadConfigFile(path string) (*config.Config, error) {
	if path == "" {
		return nil, fmt.Errorf("--file required")
	}
	return config.FromFile(path)
}
