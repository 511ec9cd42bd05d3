// Package runner orchestrates the mirroring of one pull
// request: it provisions the mirror repository, resolves
// the commits to reproduce, materializes the base-state
// and PR-state branches, and opens a pull request between
// them.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/commitmsg"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/locate"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/ref"
)

// ErrBaseBranchMissing reports that the PR-state branch
// could not be layered because the base-state branch is
// absent. The orchestrator's ordering makes this
// unreachable unless base materialization failed first.
var ErrBaseBranchMissing = errors.New(
	"base-state branch is missing",
)

// TreeMaterializer reconstructs source commit trees as
// mirror branches. Implemented by mirror/git.Materializer;
// narrowed to an interface so the orchestrator is testable
// without git or network access.
type TreeMaterializer interface {
	// Orphan builds a parentless branch holding the tree
	// of src.
	Orphan(
		ctx context.Context,
		targetRepo string,
		branch string,
		src locate.Location,
	) error

	// FromBase builds a branch holding the tree of src as
	// a child of the baseBranch tip.
	FromBase(
		ctx context.Context,
		targetRepo string,
		branch string,
		src locate.Location,
		baseBranch string,
	) error
}

// Config holds the collaborators and settings of a
// mirroring run.
type Config struct {
	// Host is the remote repository host.
	Host host.Host
	// Materializer reconstructs commit trees as mirror
	// branches.
	Materializer TreeMaterializer
	// Org is the mirror organization.
	Org string
	// UseMergeParent resolves the base state of a merged
	// pull request as the merge commit's first parent
	// instead of the recorded base SHA.
	UseMergeParent bool
}

// BranchReport describes the outcome of one branch-ensure
// step.
type BranchReport struct {
	// Name is the mirror branch name.
	Name string `json:"name"`
	// Existed reports that the branch was already present
	// and materialization was skipped.
	Existed bool `json:"existed"`
	// Created reports that the branch was materialized in
	// this run.
	Created bool `json:"created"`
	// Error is the failure diagnostic, empty on success.
	Error string `json:"error,omitempty"`
}

// ok reports whether the branch is available in the
// mirror.
func (b BranchReport) ok() bool {
	return b.Existed || b.Created
}

// Report summarizes a mirroring run.
type Report struct {
	// MirrorOrg and MirrorRepo identify the mirror
	// repository.
	MirrorOrg  string `json:"mirror_org"`
	MirrorRepo string `json:"mirror_repo"`
	// RepoCreated reports that the mirror repository was
	// provisioned in this run.
	RepoCreated bool `json:"repo_created"`
	// SourcePR is the canonical URL of the mirrored pull
	// request.
	SourcePR string `json:"source_pr,omitempty"`
	// BaseBranch and PRBranch report the two
	// branch-ensure steps.
	BaseBranch BranchReport `json:"base_branch"`
	PRBranch   BranchReport `json:"pr_branch"`
	// PullRequestOpened reports that the mirror pull
	// request was created (or already existed).
	PullRequestOpened bool `json:"pull_request_opened"`
	// PullRequestError is the non-fatal PR-creation
	// diagnostic, empty when opened or not attempted.
	PullRequestError string `json:"pull_request_error,omitempty"`
}

// Run mirrors the pull request identified by rawRef. The
// returned Report is non-nil whenever parsing succeeded,
// including on failure. Failures in the two branch-ensure
// steps are independent: both are attempted before the run
// is reported as failed. Re-running against the same
// reference is safe: existing branches are left untouched
// and an existing mirror pull request counts as success.
func Run(
	ctx context.Context,
	cfg Config,
	rawRef string,
) (*Report, error) {
	const errCtx = "mirroring pull request"

	rf, err := ref.Parse(rawRef)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	slog.Info(
		"mirroring pull request",
		"owner", rf.Owner,
		"repo", rf.Repo,
		"number", rf.Number,
		"pinned", rf.CommitSHA,
	)

	rep := &Report{
		MirrorOrg:  cfg.Org,
		MirrorRepo: mirrorRepoName(rf.Owner, rf.Repo),
	}

	if err := ensureRepo(ctx, cfg, rf, rep); err != nil {
		return rep, fmt.Errorf("%s: %w", errCtx, err)
	}

	pr, err := cfg.Host.GetPullRequest(
		ctx, rf.Owner, rf.Repo, rf.Number,
	)
	if err != nil {
		return rep, fmt.Errorf(
			"%s: fetch pull request: %w", errCtx, err,
		)
	}

	rep.SourcePR = pr.HTMLURL

	slog.Info(
		"fetched pull request",
		"state", pr.State,
		"merged", pr.Merged,
		"base", pr.Base.Ref,
	)

	content := locate.Content(pr, rf.CommitSHA)

	baseSHA, err := resolveBaseSHA(ctx, cfg, rf, pr)
	if err != nil {
		return rep, fmt.Errorf("%s: %w", errCtx, err)
	}

	rep.BaseBranch.Name = baseBranchName(
		pr.Base.Ref, rf.Number,
	)
	rep.PRBranch.Name = prBranchName(rf)

	// The two branch writes are independent: a failure in
	// one never prevents attempting the other.
	ensureBaseBranch(ctx, cfg, rep, locate.Location{
		Owner: rf.Owner,
		Repo:  rf.Repo,
		SHA:   baseSHA,
	})
	ensurePRBranch(ctx, cfg, rep, content)

	if rep.BaseBranch.ok() && rep.PRBranch.ok() {
		openPullRequest(ctx, cfg, rep, pr)
	}

	var failures []error

	if rep.BaseBranch.Error != "" {
		failures = append(failures, fmt.Errorf(
			"base-state branch %s: %s",
			rep.BaseBranch.Name, rep.BaseBranch.Error,
		))
	}

	if rep.PRBranch.Error != "" {
		failures = append(failures, fmt.Errorf(
			"pr-state branch %s: %s",
			rep.PRBranch.Name, rep.PRBranch.Error,
		))
	}

	if len(failures) > 0 {
		return rep, fmt.Errorf(
			"%s: %w", errCtx, errors.Join(failures...),
		)
	}

	return rep, nil
}

// ensureRepo provisions the mirror repository when it does
// not already exist. Any failure of the existence check
// degrades to attempting creation.
func ensureRepo(
	ctx context.Context,
	cfg Config,
	rf ref.Ref,
	rep *Report,
) error {
	err := cfg.Host.GetRepo(
		ctx, cfg.Org, rep.MirrorRepo,
	)
	if err == nil {
		slog.Info(
			"mirror repository exists",
			"repo", rep.MirrorRepo,
		)

		return nil
	}

	if !errors.Is(err, host.ErrNotFound) {
		slog.Warn(
			"mirror repository check failed, "+
				"attempting creation",
			"error", err,
		)
	}

	if err := cfg.Host.CreateRepo(
		ctx,
		rep.MirrorRepo,
		mirrorDescription(rf.Owner, rf.Repo),
	); err != nil {
		return fmt.Errorf(
			"provision mirror repository: %w", err,
		)
	}

	rep.RepoCreated = true

	return nil
}

// resolveBaseSHA picks the commit representing the base
// branch state at PR time. By default the snapshot's base
// SHA is used verbatim; with UseMergeParent a merged pull
// request resolves to the merge commit's first parent.
func resolveBaseSHA(
	ctx context.Context,
	cfg Config,
	rf ref.Ref,
	pr *host.PullRequest,
) (string, error) {
	if cfg.UseMergeParent &&
		pr.Merged &&
		pr.MergeCommitSHA != "" {
		sha, err := locate.MergeParentSHA(
			ctx, cfg.Host,
			rf.Owner, rf.Repo, pr.MergeCommitSHA,
		)
		if err != nil {
			return "", fmt.Errorf(
				"resolve base state: %w", err,
			)
		}

		slog.Info(
			"using merge parent as base state",
			"sha", sha,
		)

		return sha, nil
	}

	return locate.BaseSHA(pr), nil
}

// ensureBaseBranch materializes the base-state branch as
// an orphan history unless it already exists.
func ensureBaseBranch(
	ctx context.Context,
	cfg Config,
	rep *Report,
	src locate.Location,
) {
	branch := &rep.BaseBranch

	if branchExists(ctx, cfg, rep, branch.Name) {
		branch.Existed = true

		return
	}

	if err := cfg.Materializer.Orphan(
		ctx, rep.MirrorRepo, branch.Name, src,
	); err != nil {
		branch.Error = err.Error()

		slog.Error(
			"base-state branch failed",
			"branch", branch.Name,
			"error", err,
		)

		return
	}

	branch.Created = true
}

// ensurePRBranch materializes the PR-state branch as a
// child of the base-state branch unless it already exists.
// Requires the base-state branch: when the base step
// failed, the precondition violation is recorded instead
// of attempting a materialization that cannot produce a
// correct parent.
func ensurePRBranch(
	ctx context.Context,
	cfg Config,
	rep *Report,
	src locate.Location,
) {
	branch := &rep.PRBranch

	if branchExists(ctx, cfg, rep, branch.Name) {
		branch.Existed = true

		return
	}

	if !rep.BaseBranch.ok() {
		branch.Error = ErrBaseBranchMissing.Error()

		slog.Error(
			"pr-state branch failed",
			"branch", branch.Name,
			"error", ErrBaseBranchMissing,
		)

		return
	}

	if err := cfg.Materializer.FromBase(
		ctx,
		rep.MirrorRepo,
		branch.Name,
		src,
		rep.BaseBranch.Name,
	); err != nil {
		branch.Error = err.Error()

		slog.Error(
			"pr-state branch failed",
			"branch", branch.Name,
			"error", err,
		)

		return
	}

	branch.Created = true
}

// branchExists checks branch existence in the mirror
// repository. Check failures degrade to "absent" so the
// run proceeds to materialization.
func branchExists(
	ctx context.Context,
	cfg Config,
	rep *Report,
	branch string,
) bool {
	exists, err := cfg.Host.GetBranch(
		ctx, cfg.Org, rep.MirrorRepo, branch,
	)
	if err != nil {
		slog.Warn(
			"branch check failed, assuming absent",
			"branch", branch,
			"error", err,
		)

		return false
	}

	if exists {
		slog.Info(
			"branch exists, skipping creation",
			"branch", branch,
		)
	}

	return exists
}

// openPullRequest opens the mirror pull request from the
// PR-state branch into the base-state branch. Failure is
// recorded but never flips overall success: the branches
// are the primary deliverable.
func openPullRequest(
	ctx context.Context,
	cfg Config,
	rep *Report,
	pr *host.PullRequest,
) {
	err := cfg.Host.CreatePullRequest(
		ctx,
		cfg.Org,
		rep.MirrorRepo,
		rep.PRBranch.Name,
		rep.BaseBranch.Name,
		pr.Title,
		commitmsg.Footer(pr.Body, pr.HTMLURL),
	)
	if err != nil {
		rep.PullRequestError = err.Error()

		slog.Warn(
			"pull request creation failed, "+
				"branches were created",
			"error", err,
		)

		return
	}

	rep.PullRequestOpened = true
}

// mirrorRepoName builds the mirror repository name for a
// source repository.
func mirrorRepoName(owner string, repo string) string {
	return owner + "-" + repo
}

// mirrorDescription builds the mirror repository
// description.
func mirrorDescription(
	owner string,
	repo string,
) string {
	return fmt.Sprintf("Copy of %s/%s", owner, repo)
}

// baseBranchName builds the base-state branch name.
func baseBranchName(baseRef string, number int) string {
	return fmt.Sprintf("%s-%d", baseRef, number)
}

// prBranchName builds the PR-state branch name. A pinned
// reference embeds the short SHA so distinct pins of one
// pull request get distinct branches.
func prBranchName(rf ref.Ref) string {
	if rf.Pinned() {
		return fmt.Sprintf(
			"pr-%d-%s", rf.Number, rf.ShortSHA(),
		)
	}

	return fmt.Sprintf("pr-%d", rf.Number)
}
