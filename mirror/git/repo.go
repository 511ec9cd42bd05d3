package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/exec"
)

// StepError reports a failed step of a git work-tree
// operation, carrying the step name and the diagnostic
// output of the underlying command.
type StepError struct {
	// Step is the name of the failing step (e.g. "clone",
	// "push").
	Step string
	// Output is the combined output of the failing
	// command, empty for filesystem steps.
	Output string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StepError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}

	return fmt.Sprintf("%s: %v: %s", e.Step, e.Err, out)
}

// Unwrap returns the underlying error.
func (e *StepError) Unwrap() error {
	return e.Err
}

// Repo is a local git work tree. Create with Clone or
// Init.
type Repo struct {
	// Dir is the filesystem location of the work tree.
	Dir string
}

// Clone clones a repository into dir. Pass the full
// repository URL as url.
func Clone(
	ctx context.Context,
	url string,
	dir string,
) (*Repo, error) {
	out, err := exec.Ex(
		ctx, "", "git", "clone", url, dir,
	)
	if err != nil {
		return nil, &StepError{
			Step:   "clone",
			Output: out,
			Err:    err,
		}
	}

	return &Repo{Dir: dir}, nil
}

// Init initializes a brand-new repository in dir, creating
// the directory if needed. The resulting history is empty,
// so the first commit has no parent.
func Init(
	ctx context.Context,
	dir string,
) (*Repo, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &StepError{
			Step: "init",
			Err:  err,
		}
	}

	out, err := exec.Ex(ctx, dir, "git", "init")
	if err != nil {
		return nil, &StepError{
			Step:   "init",
			Output: out,
			Err:    err,
		}
	}

	return &Repo{Dir: dir}, nil
}

// SetIdentity sets the commit author identity for this
// work tree only.
func (r *Repo) SetIdentity(
	ctx context.Context,
	name string,
	email string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "config", "user.name", name,
	)
	if err == nil {
		out, err = exec.Ex(
			ctx, r.Dir,
			"git", "config", "user.email", email,
		)
	}

	if err != nil {
		return &StepError{
			Step:   "config",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// Checkout checks out an existing branch.
func (r *Repo) Checkout(
	ctx context.Context,
	branch string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "checkout", branch,
	)
	if err != nil {
		return &StepError{
			Step:   "checkout",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// CheckoutNew creates branch at the current tip and checks
// it out.
func (r *Repo) CheckoutNew(
	ctx context.Context,
	branch string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "checkout", "-b", branch,
	)
	if err != nil {
		return &StepError{
			Step:   "create branch",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// ArchiveTo writes a tar archive of the full tree at
// commit to tarPath.
func (r *Repo) ArchiveTo(
	ctx context.Context,
	commit string,
	tarPath string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir,
		"git", "archive", "--format=tar",
		"-o", tarPath, commit,
	)
	if err != nil {
		return &StepError{
			Step:   "archive",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// ExtractTar unpacks a tar archive into the work tree.
func (r *Repo) ExtractTar(
	ctx context.Context,
	tarPath string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir,
		"tar", "-xf", tarPath, "-C", r.Dir,
	)
	if err != nil {
		return &StepError{
			Step:   "extract",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// ClearWorkTree removes every entry of the work tree
// except the .git directory, preparing for wholesale
// content replacement.
func (r *Repo) ClearWorkTree() error {
	entries, err := os.ReadDir(r.Dir)
	if err != nil {
		return &StepError{
			Step: "clear tree",
			Err:  err,
		}
	}

	for _, entry := range entries {
		if entry.Name() == ".git" {
			continue
		}

		path := filepath.Join(r.Dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return &StepError{
				Step: "clear tree",
				Err:  err,
			}
		}
	}

	return nil
}

// RemoveTreeDir removes the named directory from the work
// tree if present. Missing directories are not an error.
func (r *Repo) RemoveTreeDir(name string) error {
	path := filepath.Join(r.Dir, name)

	if err := os.RemoveAll(path); err != nil {
		return &StepError{
			Step: "strip",
			Err:  err,
		}
	}

	return nil
}

// AddAll stages every change in the work tree, including
// deletions.
func (r *Repo) AddAll(ctx context.Context) error {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "add", "-A",
	)
	if err != nil {
		return &StepError{
			Step:   "add",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// Commit commits the staged tree with the given message.
// Returns false without error when the tree is identical
// to the current head (nothing to commit).
func (r *Repo) Commit(
	ctx context.Context,
	message string,
) (bool, error) {
	status, err := exec.Ex(
		ctx, r.Dir, "git", "status", "--porcelain",
	)
	if err != nil {
		return false, &StepError{
			Step:   "status",
			Output: status,
			Err:    err,
		}
	}

	if strings.TrimSpace(status) == "" {
		return false, nil
	}

	out, err := exec.Ex(
		ctx, r.Dir, "git", "commit", "-m", message,
	)
	if err != nil {
		return false, &StepError{
			Step:   "commit",
			Output: out,
			Err:    err,
		}
	}

	return true, nil
}

// AddRemote registers a named remote.
func (r *Repo) AddRemote(
	ctx context.Context,
	name string,
	url string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir,
		"git", "remote", "add", name, url,
	)
	if err != nil {
		return &StepError{
			Step:   "add remote",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// Push pushes a refspec to the named remote. The refspec
// may use "HEAD:<branch>" to push the local head to an
// arbitrarily named remote branch.
func (r *Repo) Push(
	ctx context.Context,
	remote string,
	refspec string,
) error {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "push", remote, refspec,
	)
	if err != nil {
		return &StepError{
			Step:   "push",
			Output: out,
			Err:    err,
		}
	}

	return nil
}

// LastMessage returns the full message of the commit at
// the current head.
func (r *Repo) LastMessage(
	ctx context.Context,
) (string, error) {
	out, err := exec.Ex(
		ctx, r.Dir, "git", "log", "-1", "--pretty=%B",
	)
	if err != nil {
		return "", &StepError{
			Step:   "log",
			Output: out,
			Err:    err,
		}
	}

	return out, nil
}
