package git

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/commitmsg"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/locate"
)

// defaultStripDirs are the CI-configuration directories
// removed from every materialized tree, so the mirror's
// automation never inherits the source's.
var defaultStripDirs = []string{".github"}

// Materializer reconstructs source commit trees as
// branches of mirror repositories.
type Materializer struct {
	// GitHost is the hostname serving git clone URLs
	// (e.g. "github.com").
	GitHost string
	// Org is the mirror organization.
	Org string
	// Token is embedded in the mirror clone URL for
	// authenticated pushes. Source repositories are
	// cloned unauthenticated.
	Token string
	// ScratchDir is the parent directory for per-call
	// scratch areas. Empty means the system temp dir.
	ScratchDir string
	// BotName and BotEmail form the commit author
	// identity.
	BotName  string
	BotEmail string
	// StripDirs are tree directories removed before
	// committing. Nil means [".github"].
	StripDirs []string
}

// Orphan builds a parentless commit holding the tree of
// src and pushes it to branch in the mirror repository
// targetRepo, creating the ref. The branch must not
// already exist.
func (m *Materializer) Orphan(
	ctx context.Context,
	targetRepo string,
	branch string,
	src locate.Location,
) error {
	const errCtx = "materializing orphan branch"

	slog.Info(
		"creating orphan branch",
		"repo", targetRepo,
		"branch", branch,
		"source", src.Owner+"/"+src.Repo,
		"commit", src.SHA,
	)

	err := m.orphan(
		ctx,
		m.sourceURL(src.Owner, src.Repo),
		m.mirrorURL(targetRepo),
		branch,
		src.SHA,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// FromBase builds a commit holding the tree of src as a
// child of the baseBranch tip and pushes it to branch in
// the mirror repository targetRepo. baseBranch must
// already exist in the mirror repository.
func (m *Materializer) FromBase(
	ctx context.Context,
	targetRepo string,
	branch string,
	src locate.Location,
	baseBranch string,
) error {
	const errCtx = "materializing branch from base"

	slog.Info(
		"creating branch from base",
		"repo", targetRepo,
		"branch", branch,
		"base", baseBranch,
		"source", src.Owner+"/"+src.Repo,
		"commit", src.SHA,
	)

	err := m.fromBase(
		ctx,
		m.sourceURL(src.Owner, src.Repo),
		m.mirrorURL(targetRepo),
		branch,
		baseBranch,
		src.SHA,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

// orphan implements Orphan against explicit clone URLs.
func (m *Materializer) orphan(
	ctx context.Context,
	sourceURL string,
	mirrorURL string,
	branch string,
	commitSHA string,
) error {
	scratch, cleanup, err := m.scratch("orphan")
	if err != nil {
		return err
	}
	defer cleanup()

	source, err := Clone(
		ctx, sourceURL,
		filepath.Join(scratch, "source"),
	)
	if err != nil {
		return err
	}

	work, err := Init(
		ctx, filepath.Join(scratch, "work"),
	)
	if err != nil {
		return err
	}

	if err := work.SetIdentity(
		ctx, m.BotName, m.BotEmail,
	); err != nil {
		return err
	}

	if err := m.replaceTree(
		ctx, source, work, commitSHA, scratch,
	); err != nil {
		return err
	}

	committed, err := work.Commit(
		ctx,
		commitmsg.Materialization(
			commitmsg.KindOrphan, commitSHA,
		),
	)
	if err != nil {
		return err
	}

	if !committed {
		// Only possible for an empty source tree; the
		// push below fails loudly in that case.
		slog.Warn(
			"orphan tree produced no commit",
			"commit", commitSHA,
		)
	}

	if err := work.AddRemote(
		ctx, "origin", mirrorURL,
	); err != nil {
		return err
	}

	return work.Push(ctx, "origin", "HEAD:"+branch)
}

// fromBase implements FromBase against explicit clone
// URLs.
func (m *Materializer) fromBase(
	ctx context.Context,
	sourceURL string,
	mirrorURL string,
	branch string,
	baseBranch string,
	commitSHA string,
) error {
	scratch, cleanup, err := m.scratch("frombase")
	if err != nil {
		return err
	}
	defer cleanup()

	target, err := Clone(
		ctx, mirrorURL,
		filepath.Join(scratch, "target"),
	)
	if err != nil {
		return err
	}

	if err := target.SetIdentity(
		ctx, m.BotName, m.BotEmail,
	); err != nil {
		return err
	}

	if err := target.Checkout(
		ctx, baseBranch,
	); err != nil {
		return err
	}

	if msg, msgErr := target.LastMessage(
		ctx,
	); msgErr == nil {
		if sha := commitmsg.ParseSHA(msg); sha != "" {
			slog.Debug(
				"base branch tip",
				"branch", baseBranch,
				"materialized_from", sha,
			)
		}
	}

	if err := target.CheckoutNew(ctx, branch); err != nil {
		return err
	}

	source, err := Clone(
		ctx, sourceURL,
		filepath.Join(scratch, "source"),
	)
	if err != nil {
		return err
	}

	if err := target.ClearWorkTree(); err != nil {
		return err
	}

	if err := m.replaceTree(
		ctx, source, target, commitSHA, scratch,
	); err != nil {
		return err
	}

	committed, err := target.Commit(
		ctx,
		commitmsg.Materialization(
			commitmsg.KindPRChanges, commitSHA,
		),
	)
	if err != nil {
		return err
	}

	if !committed {
		// Content is identical to the base tip. The
		// branch ref is still pushed so downstream PR
		// creation has something to point at.
		slog.Info(
			"no content changes, pushing ref only",
			"branch", branch,
		)
	}

	return target.Push(ctx, "origin", branch)
}

// replaceTree archives commitSHA from source, extracts it
// into dest, and strips CI-configuration directories.
func (m *Materializer) replaceTree(
	ctx context.Context,
	source *Repo,
	dest *Repo,
	commitSHA string,
	scratch string,
) error {
	tarPath := filepath.Join(scratch, "tree.tar")

	if err := source.ArchiveTo(
		ctx, commitSHA, tarPath,
	); err != nil {
		return err
	}

	if err := dest.ExtractTar(ctx, tarPath); err != nil {
		return err
	}

	for _, dir := range m.stripDirs() {
		if err := dest.RemoveTreeDir(dir); err != nil {
			return err
		}
	}

	return dest.AddAll(ctx)
}

// scratch creates a fresh scratch directory and returns
// it with its cleanup function.
func (m *Materializer) scratch(
	label string,
) (string, func(), error) {
	dir, err := os.MkdirTemp(
		m.ScratchDir, "mirror-"+label+"-*",
	)
	if err != nil {
		return "", nil, &StepError{
			Step: "scratch",
			Err:  err,
		}
	}

	cleanup := func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			slog.Error(
				"failed to clean scratch dir",
				"dir", dir,
				"error", rmErr,
			)
		}
	}

	return dir, cleanup, nil
}

// stripDirs returns the configured strip list or the
// default.
func (m *Materializer) stripDirs() []string {
	if m.StripDirs == nil {
		return defaultStripDirs
	}

	return m.StripDirs
}

// sourceURL builds the unauthenticated clone URL of a
// source repository.
func (m *Materializer) sourceURL(
	owner string,
	repo string,
) string {
	return fmt.Sprintf(
		"https://%s/%s/%s.git", m.GitHost, owner, repo,
	)
}

// mirrorURL builds the authenticated clone URL of a mirror
// repository.
func (m *Materializer) mirrorURL(repo string) string {
	return fmt.Sprintf(
		"https://%s@%s/%s/%s.git",
		m.Token, m.GitHost, m.Org, repo,
	)
}
