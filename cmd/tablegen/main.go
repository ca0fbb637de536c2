// Command tablegen compiles game config sheets into config.bytes and
// read-only Lua modules.
//
// Usage:
//
//	tablegen [build]          compile the input directory and write the artifacts
//	tablegen check            compile and emit in memory, report every error
//	tablegen serve            run the preview server
//	tablegen types            list cell type labels and visibility tags
//	tablegen inspect <file>   describe a config.bytes file
//	tablegen fetch <file>     download the latest published build
//
// Settings come from the environment and an optional .env file; see
// internal/config.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/tablegen/internal/build"
	"github.com/JonMunkholm/tablegen/internal/config"
	"github.com/JonMunkholm/tablegen/internal/core"
	"github.com/JonMunkholm/tablegen/internal/logging"
	"github.com/JonMunkholm/tablegen/internal/pack"
	"github.com/JonMunkholm/tablegen/internal/publish"
	"github.com/JonMunkholm/tablegen/internal/web"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, flag.Args(), os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: tablegen [build|check|serve|types|inspect <file>|fetch <file>]`)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := "build"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	// commands that need no configuration
	switch cmd {
	case "types":
		printTypes(stdout)
		return 0
	case "inspect":
		if len(args) != 1 {
			usage()
			return 2
		}
		return report(stderr, inspect(stdout, args[0]))
	case "build", "check", "serve", "fetch":
	default:
		usage()
		return 2
	}

	// Load .env file if it exists (Overload overwrites existing env vars)
	envErr := godotenv.Overload()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	logger := logging.Setup(stderr, cfg.Logging.Level, cfg.Logging.Format)
	if envErr == nil {
		logger.Debug("loaded .env file (overwriting existing env vars)")
	}
	logger.Debug("configuration loaded", "config", cfg.String())

	switch cmd {
	case "fetch":
		if len(args) != 1 {
			usage()
			return 2
		}
		return report(stderr, fetch(ctx, logger, cfg, args[0]))
	case "serve":
		return report(stderr, serve(ctx, logger, cfg))
	}

	opts := buildOptions(cfg)
	opts.DryRun = cmd == "check"

	var publisher build.Publisher
	if cfg.Database.Publish && !opts.DryRun {
		pool, store, err := openStore(ctx, cfg)
		if err != nil {
			return report(stderr, err)
		}
		defer pool.Close()
		publisher = store
	}

	res, err := build.NewRunner(logger, opts, publisher).Run(ctx)
	if err != nil {
		return report(stderr, err)
	}
	if opts.DryRun {
		fmt.Fprintf(stdout, "ok: %d tables, %d bytes packed, %d lua modules\n",
			len(res.Dataset.Tables), len(res.Blob), len(res.Modules))
	}
	return 0
}

func buildOptions(cfg *config.Config) build.Options {
	b := cfg.Build
	return build.Options{
		InputDir:   b.InputDir,
		OutputDir:  b.OutputDir,
		Extensions: b.Extensions,
		Workers:    b.Workers,
		CommitID:   b.CommitID,
		Audience:   b.AudienceValue(),
		Bytes:      b.Bytes,
		Lua:        b.Lua,
		Pack:       b.PackOptions(),
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, *publish.Store, error) {
	db := cfg.Database
	pool, err := publish.Connect(ctx, db.URL, db.MaxConns, db.MinConns, db.MaxConnLifetime)
	if err != nil {
		return nil, nil, err
	}
	store := publish.NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, store, nil
}

// serve runs the preview server until ctx is cancelled. Rebuilds compile in
// memory and never touch the output directory.
func serve(ctx context.Context, logger *slog.Logger, cfg *config.Config) error {
	opts := buildOptions(cfg)
	opts.DryRun = true

	var archive web.Archive
	if cfg.Database.URL != "" {
		pool, store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		archive = store
	}

	server := web.NewServer(build.NewRunner(logger, opts, nil), archive, cfg.Server)
	if _, err := server.Rebuild(ctx); err != nil {
		logger.Warn("initial build failed, serving errors until a rebuild succeeds", "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// fetch writes the latest published blob for the configured audience to path.
func fetch(ctx context.Context, logger *slog.Logger, cfg *config.Config, path string) error {
	if cfg.Database.URL == "" {
		return errors.New("fetch needs DATABASE_URL")
	}
	pool, store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	b, err := store.Latest(ctx, cfg.Build.AudienceValue())
	if err != nil {
		return err
	}
	if _, err := pack.Unpack(b.Blob); err != nil {
		return fmt.Errorf("build %s: %w", b.BuildID, err)
	}
	if err := os.WriteFile(path, b.Blob, 0o644); err != nil {
		return err
	}
	logger.Info("build fetched", "build_id", b.BuildID, "commit_id", b.CommitID, "created_at", b.CreatedAt, "path", path)
	return nil
}

// inspect prints the header and tables of a config.bytes file.
func inspect(w io.Writer, path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ds, err := pack.Unpack(blob)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Fprintf(w, "build     %s\n", ds.BuildID)
	if ds.CommitID != "" {
		fmt.Fprintf(w, "commit    %s\n", ds.CommitID)
	}
	fmt.Fprintf(w, "created   %s\n", ds.CreatedAt.Format("2006-01-02 15:04:05.000 MST"))
	fmt.Fprintf(w, "audience  %s\n", ds.Audience)
	for _, t := range ds.Tables {
		cols := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			cols[i] = c.Name + ":" + c.Type.String()
		}
		fmt.Fprintf(w, "table     %s (%d rows) %s\n", t.Name, len(t.Rows), strings.Join(cols, " "))
	}
	return nil
}

func printTypes(w io.Writer) {
	fmt.Fprintln(w, "cell types:")
	for _, label := range core.CellTypeLabels() {
		fmt.Fprintln(w, "  "+label)
	}
	fmt.Fprintln(w, "visibility tags:")
	fmt.Fprintln(w, "  allkey all serverkey server clientkey client")
}

// report prints err for a person reading the terminal: the coded summary,
// then one line per compile error.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(w, "error:", core.FormatUserError(err))

	var batch *core.CompileErrors
	if errors.As(err, &batch) {
		for _, e := range batch.Errors {
			fmt.Fprintln(w, "  "+e.Error())
		}
		fmt.Fprintf(w, "%d errors\n", batch.Len())
		return 1
	}
	fmt.Fprintln(w, "  "+err.Error())
	return 1
}
