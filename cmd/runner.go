package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/pricewatch/internal/auth"
	"github.com/desertthunder/pricewatch/internal/repositories"
	"github.com/desertthunder/pricewatch/internal/services"
	"github.com/desertthunder/pricewatch/internal/session"
	"github.com/desertthunder/pricewatch/internal/shared"
	"github.com/desertthunder/pricewatch/internal/tasks"
	"github.com/desertthunder/pricewatch/internal/tokenstore"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Configuration is read in [Runner.Before]. The store, session and API client are built
// lazily by [Runner.start] so that setup and config commands never touch the network.
type Runner struct {
	config     *shared.Config
	configPath string
	ephemeral  bool
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	base       http.RoundTripper
	open       shared.BrowserOpener

	started   bool
	db        *sql.DB
	store     tokenstore.Store
	session   *session.Manager
	transport *services.AuthTransport
	api       services.PriceService
	auth      *auth.Authenticator
	exports   *repositories.ExportLogRepository
	exporter  *tasks.HistoryExporter
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Store and API replace the SQLite store and HTTP client, mostly for tests.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Transport  http.RoundTripper
	Open       shared.BrowserOpener
	Store      tokenstore.Store
	API        services.PriceService
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.Open == nil {
		opts.Open = shared.OpenBrowser
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		base:       opts.Transport,
		open:       opts.Open,
		store:      opts.Store,
		api:        opts.API,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		configCommand, setupCommand, authCommand, productCommand, watchCommand, historyCommand, healthCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads configuration and applies global flags.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	r.ephemeral = r.ephemeral || cmd.Bool("ephemeral")

	if r.config == nil {
		config, err := r.loadConfig()
		if err != nil {
			return ctx, err
		}
		r.config = config
	}
	if url := cmd.String("api-url"); url != "" {
		r.config.API.BaseURL = url
	}

	level := shared.ParseLogLevel(r.config.Log.Level)
	if cmd.Bool("verbose") {
		level = log.DebugLevel
	}
	shared.SetLogLevel(r.logger, level)
	return ctx, nil
}

// After releases the database handle.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close()
}

// Close releases resources opened by [Runner.start].
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// loadConfig reads the config file, falling back to defaults when it does not exist.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.configPath == "" {
		return shared.DefaultConfig(), nil
	}
	if _, err := os.Stat(r.configPath); errors.Is(err, os.ErrNotExist) {
		r.logger.Debug("config file not found, using defaults", "path", r.configPath)
		return shared.DefaultConfig(), nil
	}
	return shared.LoadConfig(r.configPath)
}

// start wires the store, session, transport and services, then rehydrates the session once.
func (r *Runner) start(ctx context.Context) error {
	if r.started {
		return nil
	}
	if r.config == nil {
		r.config = shared.DefaultConfig()
	}

	if r.store == nil {
		if r.ephemeral {
			r.store = tokenstore.NewMemoryStore()
		} else {
			db, err := shared.OpenDatabase(r.config.Database)
			if err != nil {
				return err
			}
			r.db = db
			r.store = tokenstore.NewSQLiteStore(db, r.logger)
			r.exports = repositories.NewExportLogRepository(db)
		}
	}

	r.session = session.NewManager(r.store, session.WithLogger(r.logger))

	if r.api == nil {
		client, transport := services.NewHTTPClient(r.session, r.store, services.ClientOptions{
			Base:      r.base,
			RateLimit: r.config.API.RateLimit,
			Burst:     r.config.API.Burst,
			Logger:    r.logger,
		})
		r.transport = transport
		r.api = services.NewAPIService(r.config.API.BaseURL, client,
			services.WithTimeouts(r.config.API.Timeout.Duration, r.config.API.ProductTimeout.Duration),
			services.WithTokenSource(transport),
		)
	}

	r.auth = auth.NewAuthenticator(r.api, r.session, r.logger)

	var recorder tasks.ExportRecorder
	if r.exports != nil {
		recorder = r.exports
	}
	r.exporter = tasks.NewHistoryExporter(r.api, recorder, r.logger)

	r.session.Rehydrate(ctx, r.api.ResolveUser)
	r.started = true
	return nil
}

// SetLogger swaps the logger used by the runner and everything it builds afterwards.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
	if r.transport != nil {
		r.transport.Logger = l
	}
}

func (r *Runner) oauthFlow(out io.Writer, provider string) *auth.OAuthFlow {
	cfg := r.config.OAuth
	if provider != "" {
		cfg.Provider = provider
	}
	return &auth.OAuthFlow{
		Auth:   r.auth,
		API:    r.api,
		Config: cfg,
		Open:   r.open,
		Out:    out,
		Logger: r.logger,
	}
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(b []byte) error {
	if _, err := r.output.Write(b); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
