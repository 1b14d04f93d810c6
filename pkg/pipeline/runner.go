package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/contentgraph/pkg/builder"
	"github.com/matzehuels/contentgraph/pkg/config"
	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
	"github.com/matzehuels/contentgraph/pkg/gitutil"
	"github.com/matzehuels/contentgraph/pkg/graph"
	cgio "github.com/matzehuels/contentgraph/pkg/io"
	"github.com/matzehuels/contentgraph/pkg/observability"
	"github.com/matzehuels/contentgraph/pkg/remote"
)

// State is a step of the update orchestration.
type State string

const (
	StateStart             State = "start"
	StateUseCurrent        State = "use-current"
	StateImportRemote      State = "import-remote"
	StateImportMerged      State = "import-merged"
	StateCreateFresh       State = "create-fresh"
	StateUpdateIncremental State = "update-incremental"
	StateExport            State = "export"
)

// Git is the part of the repository reader the runner needs.
type Git interface {
	HeadCommit(ctx context.Context) (string, error)
	ChangedPacks(ctx context.Context, base string) (gitutil.Changes, error)
}

// Runner executes graph builds. Remote and Git are optional: without a remote
// every update falls back to a full create, and without git no commit is
// recorded and UseGit is rejected.
type Runner struct {
	Graph   *graph.Graph
	Builder *builder.Builder
	Remote  remote.Store
	Git     Git
	Logger  *log.Logger
}

// NewRunner creates a runner for g. A builder with default options is created
// when b is nil.
func NewRunner(g *graph.Graph, b *builder.Builder, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	if b == nil {
		b = builder.New(g, builder.Options{Logger: logger})
	}
	return &Runner{Graph: g, Builder: b, Logger: logger}
}

// CreateOptions configures a full build.
type CreateOptions struct {
	Marketplace content.Marketplace

	// Dependencies recomputes pack dependencies after the build.
	Dependencies bool
	MaxDepth     int
	IncludeTests bool

	// OutputDir receives <marketplace>.zip. Empty skips the export.
	OutputDir string

	// Upload publishes the exported snapshot to the remote store.
	Upload bool
}

// UpdateOptions configures an incremental build.
type UpdateOptions struct {
	Marketplace content.Marketplace

	// UseGit adds the packs changed since Commit, or since the commit the
	// graph was built from when Commit is empty.
	UseGit bool
	Commit string

	// ImportedPath imports this snapshot instead of downloading one.
	ImportedPath string

	// UseCurrent skips the import and updates whatever the store holds.
	UseCurrent bool

	// Packs are reparsed in addition to the git changes.
	Packs []string

	// External marks a repository that extends the shared content set. The
	// shared snapshot is merged with a snapshot of the local packs.
	External bool

	Dependencies bool
	MaxDepth     int
	IncludeTests bool
	OutputDir    string
	Upload       bool
}

func (o UpdateOptions) create() CreateOptions {
	return CreateOptions{
		Marketplace:  o.Marketplace,
		Dependencies: o.Dependencies,
		MaxDepth:     o.MaxDepth,
		IncludeTests: o.IncludeTests,
		OutputDir:    o.OutputDir,
		Upload:       o.Upload,
	}
}

// Transition is one recorded state change.
type Transition struct {
	From State  `json:"from"`
	To   State  `json:"to"`
	Err  string `json:"error,omitempty"`
}

// Result describes a finished run.
type Result struct {
	RunID        string         `json:"run_id"`
	Mode         string         `json:"mode"`
	Transitions  []Transition   `json:"transitions"`
	Build        *builder.Stats `json:"build,omitempty"`
	UpdatedPacks []string       `json:"updated_packs,omitempty"`
	Dependencies int            `json:"dependencies"`
	Cycles       [][]string     `json:"cycles,omitempty"`
	Commit       string         `json:"commit,omitempty"`
	Output       string         `json:"output,omitempty"`
	Stats        graph.Stats    `json:"stats"`
	Duration     time.Duration  `json:"duration"`

	state State
}

func newResult(mode string) *Result {
	return &Result{RunID: uuid.NewString(), Mode: mode, state: StateStart}
}

// State returns the state the run ended in.
func (r *Result) State() State { return r.state }

func (r *Runner) transition(ctx context.Context, res *Result, to State, cause error) {
	t := Transition{From: res.state, To: to}
	if cause != nil {
		t.Err = cause.Error()
		r.Logger.Warn("falling back", "from", res.state, "to", to, "err", cause)
	} else {
		r.Logger.Debug("transition", "from", res.state, "to", to)
	}
	observability.Pipeline().OnTransition(ctx, string(res.state), string(to), cause)
	res.Transitions = append(res.Transitions, t)
	res.state = to
}

// CreateContentGraph rebuilds the graph from every pack in the repository.
func (r *Runner) CreateContentGraph(ctx context.Context, opts CreateOptions) (*Result, error) {
	res := newResult(builder.ModeCreate)
	start := time.Now()
	if err := r.createFresh(ctx, res); err != nil {
		return nil, err
	}
	if err := r.finish(ctx, res, opts); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// UpdateContentGraph brings the graph up to date with the repository,
// starting from a snapshot where possible.
//
// Any failure that is neither fatal nor caused by invalid input or
// cancellation is recovered by a full create.
func (r *Runner) UpdateContentGraph(ctx context.Context, opts UpdateOptions) (*Result, error) {
	force, err := config.ForceCreate()
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeInvalidInput, err, "read %s", config.EnvForceCreate)
	}
	if force {
		r.Logger.Info("full recreation forced", "env", config.EnvForceCreate)
		return r.CreateContentGraph(ctx, opts.create())
	}

	start := time.Now()
	res := newResult(builder.ModeUpdate)
	err = r.update(ctx, res, opts)
	if err == nil {
		res.Duration = time.Since(start)
		return res, nil
	}
	if !recoverable(ctx, err) {
		return nil, err
	}

	r.transition(ctx, res, StateCreateFresh, err)
	if err := r.createFresh(ctx, res); err != nil {
		return nil, err
	}
	if err := r.finish(ctx, res, opts.create()); err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	return res, nil
}

// recoverable reports whether a full create may stand in for a failed update.
func recoverable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if cgerrors.IsFatal(err) {
		return false
	}
	return !strings.HasPrefix(string(cgerrors.GetCode(err)), "INVALID_")
}

func (r *Runner) update(ctx context.Context, res *Result, opts UpdateOptions) error {
	if opts.UseGit && r.Git == nil {
		return cgerrors.New(cgerrors.ErrCodeInvalidInput, "use-git requires a git repository")
	}
	for _, id := range opts.Packs {
		if err := cgerrors.ValidatePackID(id); err != nil {
			return err
		}
	}

	if opts.UseCurrent {
		r.transition(ctx, res, StateUseCurrent, nil)
	} else {
		r.transition(ctx, res, StateImportRemote, nil)
		staged, err := r.importRemote(ctx, opts)
		if err != nil {
			r.transition(ctx, res, StateCreateFresh, err)
			if err := r.createFresh(ctx, res); err != nil {
				return err
			}
			return r.finish(ctx, res, opts.create())
		}
		if opts.External {
			r.transition(ctx, res, StateImportMerged, nil)
			if err := r.importMerged(ctx, res, opts.Marketplace, staged); err != nil {
				return err
			}
		}
	}

	if err := r.updateIncremental(ctx, res, opts); err != nil {
		return err
	}
	return r.finish(ctx, res, opts.create())
}

// importRemote stages and imports a snapshot, returning the staged path. The
// store is empty when it fails.
func (r *Runner) importRemote(ctx context.Context, opts UpdateOptions) (string, error) {
	path := opts.ImportedPath
	if path == "" {
		downloaded, err := r.download(ctx, opts.Marketplace)
		if err != nil {
			return "", err
		}
		path = downloaded
	}
	if !r.Graph.ImportGraph(ctx, path) {
		return "", cgerrors.New(cgerrors.ErrCodeSnapshot, "snapshot %s could not be imported", path)
	}
	return path, nil
}

func (r *Runner) download(ctx context.Context, m content.Marketplace) (string, error) {
	if r.Remote == nil {
		return "", cgerrors.New(cgerrors.ErrCodeSnapshot, "no remote snapshot store configured")
	}
	if err := r.Graph.CleanImportDir(); err != nil {
		return "", err
	}
	tmp, err := os.MkdirTemp("", "contentgraph-download-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmp)

	dest := filepath.Join(tmp, cgio.FileName(m))
	if err := r.Remote.Download(ctx, m, dest); err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeSnapshot, err, "download %s from %s", cgio.FileName(m), r.Remote.Location())
	}
	staged, err := r.Graph.MoveToImportDir(dest)
	if err != nil {
		return "", cgerrors.Wrap(cgerrors.ErrCodeSnapshot, err, "stage snapshot")
	}
	r.Logger.Info("downloaded snapshot", "from", r.Remote.Location(), "path", staged)
	return staged, nil
}

// importMerged replaces the imported shared graph with the merge of the
// shared snapshot at shared and a fresh build of the local packs. When the
// merge fails the local build is imported alone.
func (r *Runner) importMerged(ctx context.Context, res *Result, m content.Marketplace, shared string) error {
	tmp, err := os.MkdirTemp("", "contentgraph-merge-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(tmp)

	stats, err := r.Builder.CreateGraph(ctx)
	if err != nil {
		return err
	}
	res.Build = stats
	if err := r.recordCommit(ctx, res); err != nil {
		return err
	}
	local := filepath.Join(tmp, "local.zip")
	if err := r.Graph.ExportGraph(ctx, local, m); err != nil {
		return err
	}

	merged := filepath.Join(tmp, cgio.FileName(m))
	if err := cgio.MergeFiles(local, shared, merged); err != nil {
		r.transition(ctx, res, StateImportMerged, cgerrors.Wrap(cgerrors.ErrCodeSnapshot, err, "merge snapshots"))
		if !r.Graph.ImportGraph(ctx, local) {
			return cgerrors.New(cgerrors.ErrCodeSnapshot, "local snapshot could not be imported")
		}
		return nil
	}
	if !r.Graph.ImportGraph(ctx, merged) {
		return cgerrors.New(cgerrors.ErrCodeSnapshot, "merged snapshot could not be imported")
	}
	return nil
}

func (r *Runner) updateIncremental(ctx context.Context, res *Result, opts UpdateOptions) error {
	r.transition(ctx, res, StateUpdateIncremental, nil)

	packs := slices.Clone(opts.Packs)
	if opts.UseGit {
		base := opts.Commit
		if base == "" {
			stored, err := r.Graph.CommitHash(ctx)
			if err != nil {
				return err
			}
			base = stored
		}
		if base == "" {
			return cgerrors.New(cgerrors.ErrCodeGit, "graph records no commit to diff against")
		}
		changes, err := r.Git.ChangedPacks(ctx, base)
		if err != nil {
			return err
		}
		r.Logger.Info("packs changed since commit", "commit", base, "changes", changes.String())
		packs = append(packs, changes.All()...)
	}
	slices.Sort(packs)
	packs = slices.Compact(packs)

	if len(packs) == 0 {
		r.Logger.Info("no packs to update")
	} else {
		stats, err := r.Builder.UpdateGraph(ctx, packs)
		if err != nil {
			return err
		}
		res.Build = stats
		res.UpdatedPacks = packs
	}
	return r.recordCommit(ctx, res)
}

func (r *Runner) createFresh(ctx context.Context, res *Result) error {
	if res.state != StateCreateFresh {
		r.transition(ctx, res, StateCreateFresh, nil)
	}
	stats, err := r.Builder.CreateGraph(ctx)
	if err != nil {
		return err
	}
	res.Build = stats
	res.UpdatedPacks = nil
	return r.recordCommit(ctx, res)
}

// recordCommit stores HEAD as the commit the graph reflects.
func (r *Runner) recordCommit(ctx context.Context, res *Result) error {
	if r.Git == nil {
		return nil
	}
	head, err := r.Git.HeadCommit(ctx)
	if err != nil {
		r.Logger.Warn("cannot read HEAD, commit not recorded", "err", err)
		return nil
	}
	res.Commit = head
	return r.Graph.SetCommitHash(ctx, head)
}

// finish recomputes dependencies and exports the result.
func (r *Runner) finish(ctx context.Context, res *Result, opts CreateOptions) error {
	if opts.Dependencies {
		result, err := r.Graph.CreatePackDependencies(ctx, graph.DependencyOptions{
			MaxDepth:     opts.MaxDepth,
			IncludeTests: opts.IncludeTests,
			Marketplace:  opts.Marketplace,
		})
		if err != nil {
			return err
		}
		res.Dependencies = len(result.Dependencies)
		res.Cycles = result.Cycles
	}

	if opts.OutputDir != "" {
		r.transition(ctx, res, StateExport, nil)
		out := filepath.Join(opts.OutputDir, cgio.FileName(opts.Marketplace))
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := r.Graph.ExportGraph(ctx, out, opts.Marketplace); err != nil {
			return err
		}
		res.Output = out
		if opts.Upload {
			if r.Remote == nil {
				return cgerrors.New(cgerrors.ErrCodeInvalidInput, "upload requires a remote snapshot store")
			}
			if err := r.Remote.Upload(ctx, opts.Marketplace, out); err != nil {
				return cgerrors.Wrap(cgerrors.ErrCodeNetwork, err, "upload snapshot")
			}
			r.Logger.Info("uploaded snapshot", "to", r.Remote.Location())
		}
	}

	stats, err := r.Graph.Stats(ctx)
	if err != nil {
		return err
	}
	res.Stats = stats
	r.Logger.Info("content graph ready",
		"mode", res.Mode,
		"nodes", stats.Nodes,
		"relationships", stats.Relationships,
		"pack_dependencies", stats.PackDependencies)
	return nil
}

