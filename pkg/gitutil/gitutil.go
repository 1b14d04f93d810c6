// Package gitutil reads what the graph needs from a content repository's git
// history: the HEAD commit a graph was built from, and the packs that changed
// since a given commit.
//
// Diffs are produced by the git binary and parsed with go-diff, so renames,
// deletions and additions all surface as file pairs.
package gitutil

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/matzehuels/contentgraph/pkg/content"
	cgerrors "github.com/matzehuels/contentgraph/pkg/errors"
)

const defaultTimeout = time.Minute

// Repo runs git commands in one working tree.
type Repo struct {
	dir     string
	timeout time.Duration
}

// Open returns a Repo for dir. It fails when dir is not inside a work tree.
func Open(ctx context.Context, dir string, timeout time.Duration) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	r := &Repo{dir: abs, timeout: timeout}
	if _, err := r.run(ctx, "rev-parse", "--is-inside-work-tree"); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the working tree the repo was opened for.
func (r *Repo) Dir() string { return r.dir }

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", cgerrors.New(cgerrors.ErrCodeTimeout, "git %s: timeout after %v", args[0], r.timeout)
		}
		return "", cgerrors.Wrap(cgerrors.ErrCodeGit, err, "git %s: %s", args[0], strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// HeadCommit returns the full hash of HEAD.
func (r *Repo) HeadCommit(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	return strings.TrimSpace(out), err
}

// ShowFile returns path as of rev.
func (r *Repo) ShowFile(ctx context.Context, rev, path string) ([]byte, error) {
	out, err := r.run(ctx, "show", rev+":"+filepath.ToSlash(path))
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// UntrackedFiles lists files git does not track and does not ignore.
func (r *Repo) UntrackedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "ls-files", "--others", "--exclude-standard")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Diff returns the changes of the working tree relative to base.
func (r *Repo) Diff(ctx context.Context, base string) ([]*diff.FileDiff, error) {
	out, err := r.run(ctx, "diff", "--no-color", "--no-ext-diff", "--find-renames", base)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		return nil, nil
	}
	fds, err := diff.ParseMultiFileDiff([]byte(out))
	if err != nil {
		return nil, cgerrors.Wrap(cgerrors.ErrCodeGit, err, "parse diff against %s", base)
	}
	return fds, nil
}

// Changes splits the packs touched since a commit.
type Changes struct {
	// Changed packs still exist and must be parsed again.
	Changed []string
	// Deleted packs have no directory left.
	Deleted []string
}

// All returns changed and deleted packs together, sorted.
func (c Changes) All() []string {
	all := append(slices.Clone(c.Changed), c.Deleted...)
	slices.Sort(all)
	return all
}

// ChangedPacks compares the working tree, untracked files included, with base.
func (r *Repo) ChangedPacks(ctx context.Context, base string) (Changes, error) {
	fds, err := r.Diff(ctx, base)
	if err != nil {
		return Changes{}, err
	}
	untracked, err := r.UntrackedFiles(ctx)
	if err != nil {
		return Changes{}, err
	}

	packs := PacksFromDiff(fds)
	for _, f := range untracked {
		if id := PackOf(f); id != "" && !slices.Contains(packs, id) {
			packs = append(packs, id)
		}
	}
	slices.Sort(packs)

	var c Changes
	for _, id := range packs {
		if _, err := os.Stat(filepath.Join(r.dir, content.PacksDir, id)); errors.Is(err, os.ErrNotExist) {
			c.Deleted = append(c.Deleted, id)
		} else {
			c.Changed = append(c.Changed, id)
		}
	}
	return c, nil
}

// PacksFromDiff returns the packs any file in fds belongs to, on either side
// of the diff, sorted.
func PacksFromDiff(fds []*diff.FileDiff) []string {
	var packs []string
	for _, fd := range fds {
		for _, name := range []string{fd.OrigName, fd.NewName} {
			if id := PackOf(stripPrefix(name)); id != "" && !slices.Contains(packs, id) {
				packs = append(packs, id)
			}
		}
	}
	slices.Sort(packs)
	return packs
}

// PackOf returns the pack id of a repository-relative path, or "" when the
// path is not inside a pack.
func PackOf(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	if len(parts) < 3 || parts[0] != content.PacksDir || parts[1] == "" {
		return ""
	}
	return parts[1]
}

// stripPrefix removes git's a/ and b/ markers.
func stripPrefix(name string) string {
	if name == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// String formats changes for logs.
func (c Changes) String() string {
	return fmt.Sprintf("%d changed, %d deleted", len(c.Changed), len(c.Deleted))
}
