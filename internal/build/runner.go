// Package build runs one end-to-end compilation: read the sheets, compile
// them, filter for the audience, then write the binary artifact and the Lua
// modules.
package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tablegen/internal/core"
	"github.com/JonMunkholm/tablegen/internal/luagen"
	"github.com/JonMunkholm/tablegen/internal/pack"
	"github.com/JonMunkholm/tablegen/internal/sheet"
)

const (
	// BlobFile is the binary artifact name inside the output directory.
	BlobFile = "config.bytes"
	// LuaDir is the directory of the Lua modules inside the output directory.
	LuaDir = "lua"
)

// ErrArtifactPath is returned for an artifact path that leaves the output directory.
var ErrArtifactPath = errors.New("artifact path outside output dir")

// Options selects the input, the outputs and the audience of a run.
type Options struct {
	InputDir   string
	OutputDir  string
	Extensions []string
	Workers    int
	CommitID   string
	Audience   core.Audience

	Bytes bool // write config.bytes
	Lua   bool // write lua/<table>.lua
	Pack  pack.Options

	// DryRun compiles and emits in memory but writes nothing.
	DryRun bool
}

// Publisher archives a finished build.
type Publisher interface {
	Publish(ctx context.Context, ds *core.Dataset, blob []byte) error
}

// Result is the outcome of a successful run.
type Result struct {
	// Dataset is filtered for the run's audience.
	Dataset *core.Dataset
	Blob    []byte
	Modules []luagen.Module
	// Written lists the files created, empty for a dry run.
	Written  []string
	Duration time.Duration
}

// Runner performs builds with fixed options. It is safe for concurrent use,
// although concurrent runs writing the same output directory will race.
type Runner struct {
	logger    *slog.Logger
	opts      Options
	reader    *sheet.Reader
	compiler  *core.Compiler
	publisher Publisher
}

// NewRunner creates a Runner. publisher may be nil.
func NewRunner(logger *slog.Logger, opts Options, publisher Publisher) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		logger:    logger,
		opts:      opts,
		reader:    sheet.NewReader(logger, opts.Extensions, opts.Workers),
		compiler:  core.NewCompiler(core.WithLogger(logger), core.WithWorkers(opts.Workers), core.WithCommitID(opts.CommitID)),
		publisher: publisher,
	}
}

// Options returns the options the runner was created with.
func (r *Runner) Options() Options {
	return r.opts
}

// Run builds every sheet of the input directory. Errors from compiling and
// emitting are returned as one *core.CompileErrors covering all tables.
// Nothing is written unless the whole build succeeds.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	start := time.Now()

	raws, err := r.reader.ReadDir(ctx, r.opts.InputDir)
	if err != nil {
		return nil, err
	}

	res, err := r.Compile(raws)
	if err != nil {
		return nil, err
	}

	if !r.opts.DryRun {
		written, err := Write(ctx, r.opts.OutputDir, r.artifacts(res), r.opts.Lua)
		if err != nil {
			return nil, err
		}
		res.Written = written

		if r.publisher != nil {
			if err := r.publisher.Publish(ctx, res.Dataset, res.Blob); err != nil {
				return nil, err
			}
			r.logger.Info("build published", "build_id", res.Dataset.BuildID)
		}
	}

	res.Duration = time.Since(start)
	r.logger.Info("build finished",
		"build_id", res.Dataset.BuildID,
		"audience", res.Dataset.Audience,
		"tables", len(res.Dataset.Tables),
		"files", len(res.Written),
		"dry_run", r.opts.DryRun,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Compile turns already loaded sheets into the filtered dataset, its packed
// blob and, when Lua output is enabled, the Lua modules.
func (r *Runner) Compile(raws []core.RawTable) (*Result, error) {
	ds, err := r.compiler.CompileDataset(raws)
	if err != nil {
		return nil, err
	}
	ds = ds.ForAudience(r.opts.Audience)

	res := &Result{Dataset: ds}

	// the blob is packed even when not written, it is what gets published
	res.Blob, err = pack.Pack(ds, r.opts.Pack)
	if err != nil {
		return nil, fmt.Errorf("pack dataset: %w", err)
	}

	if r.opts.Lua {
		res.Modules, err = luagen.EmitAll(ds.Tables)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// artifacts lists the files of res that the options ask for.
func (r *Runner) artifacts(res *Result) []Artifact {
	var out []Artifact
	if r.opts.Bytes {
		out = append(out, Artifact{Path: BlobFile, Data: res.Blob})
	}
	if r.opts.Lua {
		for _, m := range res.Modules {
			out = append(out, Artifact{Path: filepath.Join(LuaDir, m.FileName()), Data: m.Source})
		}
	}
	return out
}

// Artifact is one output file, its path relative to the output directory.
type Artifact struct {
	Path string
	Data []byte
}

// Write stores artifacts below dir, one goroutine per file. When lua is
// set, the lua directory is recreated first so modules of deleted sheets
// disappear, even if no module is written. Every artifact path must stay
// inside dir. Files are written to a temporary name and renamed into place.
// It returns the written paths in input order.
func Write(ctx context.Context, dir string, artifacts []Artifact, lua bool) ([]string, error) {
	for _, a := range artifacts {
		if !filepath.IsLocal(a.Path) {
			return nil, fmt.Errorf("%w: %q", ErrArtifactPath, a.Path)
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if lua {
		luaDir := filepath.Join(dir, LuaDir)
		if err := os.RemoveAll(luaDir); err != nil {
			return nil, fmt.Errorf("clear lua dir: %w", err)
		}
		if err := os.MkdirAll(luaDir, 0o755); err != nil {
			return nil, fmt.Errorf("create lua dir: %w", err)
		}
	}

	paths := make([]string, len(artifacts))
	g, ctx := errgroup.WithContext(ctx)
	for i, a := range artifacts {
		paths[i] = filepath.Join(dir, a.Path)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return writeFile(paths[i], a.Data)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
