// Package gitrepo is a thin wrapper over git(1) for the checkouts the
// updater maintains. It shells out rather than linking a git library; the
// deployment already requires the git binary and the subset of commands
// used here is small and stable.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Remote is the only remote the updater manages.
const Remote = "origin"

// Repo drives git commands inside an existing working tree.
type Repo struct {
	Root string
}

func Open(root string) *Repo { return &Repo{Root: root} }

// CmdError carries the failing git invocation together with its combined
// output, which is what operators need to diagnose a broken checkout.
type CmdError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CmdError) Error() string {
	msg := fmt.Sprintf("git %s: %v", strings.Join(e.Args, " "), e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += ": " + out
	}
	return msg
}

func (e *CmdError) Unwrap() error { return e.Err }

// Git runs git with the given arguments in the repository root and returns
// the trimmed combined output.
func (r *Repo) Git(ctx context.Context, args ...string) (string, error) {
	// #nosec G204 -- arguments come from the sourcemap, not request input
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Root
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", &CmdError{Args: args, Output: string(out), Err: err}
	}
	return strings.TrimSpace(string(out)), nil
}

// Clone creates a fresh checkout of url at dest. It does not need an
// existing working tree.
func Clone(ctx context.Context, url, dest string) error {
	// #nosec G204
	cmd := exec.CommandContext(ctx, "git", "clone", url, dest)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &CmdError{Args: []string{"clone", url, dest}, Output: string(out), Err: err}
	}
	return nil
}

// SetRemoteURL repoints origin, so renamed upstreams keep working without
// re-cloning.
func (r *Repo) SetRemoteURL(ctx context.Context, url string) error {
	_, err := r.Git(ctx, "remote", "set-url", Remote, url)
	return err
}

// FetchAll updates all remote tracking refs.
func (r *Repo) FetchAll(ctx context.Context) error {
	_, err := r.Git(ctx, "fetch", "--all")
	return err
}

// Clean discards every local modification including untracked files. The
// checkouts are index inputs, never a place for local work.
func (r *Repo) Clean(ctx context.Context) error {
	if _, err := r.Git(ctx, "clean", "-xfd"); err != nil {
		return err
	}
	_, err := r.Git(ctx, "reset", "--hard")
	return err
}

// RemoteCheckout forces the local branch to the remote's state after a
// Clean, leaving the tree bit-identical to the remote branch head.
func (r *Repo) RemoteCheckout(ctx context.Context, branch string) error {
	if err := r.Clean(ctx); err != nil {
		return err
	}
	_, err := r.Git(ctx, "checkout", "-B", branch, Remote+"/"+branch)
	return err
}

// Refs returns the ref name to hash mapping, from ls-remote when remote is
// true, otherwise from show-ref.
func (r *Repo) Refs(ctx context.Context, remote bool) (map[string]string, error) {
	var out string
	var err error
	if remote {
		out, err = r.Git(ctx, "ls-remote", Remote)
	} else {
		out, err = r.Git(ctx, "show-ref")
	}
	if err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		refs[fields[1]] = fields[0]
	}
	return refs, nil
}

// HasBranch reports whether the branch exists locally or, unless localOnly,
// on the tracked remote.
func (r *Repo) HasBranch(ctx context.Context, name string, localOnly bool) (bool, error) {
	refs, err := r.Refs(ctx, false)
	if err != nil {
		return false, err
	}
	if _, ok := refs["refs/heads/"+name]; ok {
		return true, nil
	}
	if localOnly {
		return false, nil
	}
	_, ok := refs["refs/remotes/"+Remote+"/"+name]
	return ok, nil
}

// RevParse resolves a revision name to its hash.
func (r *Repo) RevParse(ctx context.Context, rev string) (string, error) {
	return r.Git(ctx, "rev-parse", rev)
}

// IsAncestor checks whether older is an ancestor of newer. Equal revisions
// count as ancestors, matching merge-base --is-ancestor semantics.
func (r *Repo) IsAncestor(ctx context.Context, older, newer string) (bool, error) {
	_, err := r.Git(ctx, "merge-base", "--is-ancestor", older, newer)
	if err == nil {
		return true, nil
	}
	var cerr *CmdError
	if errors.As(err, &cerr) {
		var exitErr *exec.ExitError
		if errors.As(cerr.Err, &exitErr) && exitErr.ExitCode() == 1 {
			return false, nil
		}
	}
	return false, err
}

// MergeBase returns the common ancestor of two revisions.
func (r *Repo) MergeBase(ctx context.Context, rev1, rev2 string) (string, error) {
	return r.Git(ctx, "merge-base", rev1, rev2)
}
