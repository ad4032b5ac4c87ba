// Package cmd contains all CLI commands for marquectl.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/marquee/internal/auth/app"
	"github.com/aussiebroadwan/marquee/internal/auth/audit"
	"github.com/aussiebroadwan/marquee/internal/auth/service"
	"github.com/aussiebroadwan/marquee/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/marquee/pkg/cryptox"
)

// Actor is recorded on audit events caused by the CLI.
const Actor = "marquectl"

type options struct {
	dbFile     string
	pepperFile string
	output     string
}

// env holds the services a command needs. Commands open it lazily so keygen
// works without a database.
type env struct {
	db       *sqlite.Store
	accounts *service.AccountService
	admin    *service.AdminService
}

func (o *options) open() (*env, error) {
	db, err := app.OpenDatabase(o.dbFile)
	if err != nil {
		return nil, err
	}
	pepper, err := cryptox.LoadOrCreatePepper(o.pepperFile)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	hasher, err := cryptox.NewHasher(cryptox.DefaultScryptParams, pepper)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	emitter := audit.LogEmitter{}
	sessions := &service.SessionService{Store: db}
	cache := service.NewAccountCache(db, 0)
	return &env{
		db: db,
		accounts: &service.AccountService{
			Store:    db,
			Hasher:   hasher,
			Sessions: sessions,
			Cache:    cache,
			Audit:    emitter,
		},
		admin: &service.AdminService{Store: db, Sessions: sessions, Cache: cache, Audit: emitter},
	}, nil
}

func (e *env) Close() error { return e.db.Close() }

// withEnv opens the database for the duration of fn.
func (o *options) withEnv(fn func(*env) error) error {
	e, err := o.open()
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(e)
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printTable prints data in a simple table format
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)
	for i := range headers {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "marquectl",
		Short: "Administer a Marquee auth database",
		Long: `marquectl manages Marquee accounts, sessions and key material.

It works directly on the sqlite database, so it can create the first admin
account before the service has ever started.

Examples:
  # Generate a session signing key and a secret cipher key
  marquectl keygen --id s1
  marquectl keygen --id v1

  # Create the first administrator
  marquectl account create alice --admin

  # Sign someone out everywhere
  marquectl sessions revoke bob

Environment Variables:
  MARQUEE_DATABASE_FILE     Database file (default: marquee.db)
  MARQUEE_KEYS_PEPPER_FILE  Pepper file (default: pepper)`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.dbFile, "db", getEnvOrDefault("MARQUEE_DATABASE_FILE", "marquee.db"), "Database file")
	root.PersistentFlags().StringVar(&opts.pepperFile, "pepper", getEnvOrDefault("MARQUEE_KEYS_PEPPER_FILE", "pepper"), "Pepper file")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format: table, json")

	root.AddCommand(
		newKeygenCmd(),
		newHashCmd(opts),
		newAccountCmd(opts),
		newSessionsCmd(opts),
	)
	return root
}

// Execute runs the CLI with os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
