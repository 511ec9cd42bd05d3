package runner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/locate"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/ref"
	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/runner"
)

const (
	headSHA = "2222222222222222222222222222222222222222"
	baseSHA = "1111111111111111111111111111111111111111"
	mergSHA = "3333333333333333333333333333333333333333"
	pinSHA  = "4444444444444444444444444444444444444444"
)

// fakeHost implements host.Host in memory.
type fakeHost struct {
	repos    map[string]bool
	branches map[string]bool
	pr       *host.PullRequest
	parents  []string

	getPRErr      error
	createRepoErr error
	createPRErr   error

	calls       []string
	createdPR   []string
	createdDesc string
}

func newFakeHost(pr *host.PullRequest) *fakeHost {
	return &fakeHost{
		repos:    map[string]bool{},
		branches: map[string]bool{},
		pr:       pr,
	}
}

func (f *fakeHost) GetRepo(
	_ context.Context,
	owner string,
	repo string,
) error {
	f.calls = append(f.calls, "GetRepo")

	if f.repos[owner+"/"+repo] {
		return nil
	}

	return host.ErrNotFound
}

func (f *fakeHost) CreateRepo(
	_ context.Context,
	name string,
	description string,
) error {
	f.calls = append(f.calls, "CreateRepo")
	f.createdDesc = description

	if f.createRepoErr != nil {
		return f.createRepoErr
	}

	return nil
}

func (f *fakeHost) GetPullRequest(
	_ context.Context,
	_ string,
	_ string,
	_ int,
) (*host.PullRequest, error) {
	f.calls = append(f.calls, "GetPullRequest")

	if f.getPRErr != nil {
		return nil, f.getPRErr
	}

	return f.pr, nil
}

func (f *fakeHost) GetBranch(
	_ context.Context,
	_ string,
	repo string,
	branch string,
) (bool, error) {
	f.calls = append(f.calls, "GetBranch")

	return f.branches[repo+"/"+branch], nil
}

func (f *fakeHost) CommitParents(
	_ context.Context,
	_ string,
	_ string,
	_ string,
) ([]string, error) {
	f.calls = append(f.calls, "CommitParents")

	return f.parents, nil
}

func (f *fakeHost) CreatePullRequest(
	_ context.Context,
	_ string,
	repo string,
	head string,
	base string,
	_ string,
	body string,
) error {
	f.calls = append(f.calls, "CreatePullRequest")
	f.createdPR = []string{repo, head, base, body}

	return f.createPRErr
}

// matCall records one materializer invocation.
type matCall struct {
	kind       string
	targetRepo string
	branch     string
	src        locate.Location
	baseBranch string
}

// fakeMaterializer implements runner.TreeMaterializer.
type fakeMaterializer struct {
	calls       []matCall
	orphanErr   error
	fromBaseErr error
}

func (f *fakeMaterializer) Orphan(
	_ context.Context,
	targetRepo string,
	branch string,
	src locate.Location,
) error {
	f.calls = append(f.calls, matCall{
		kind:       "orphan",
		targetRepo: targetRepo,
		branch:     branch,
		src:        src,
	})

	return f.orphanErr
}

func (f *fakeMaterializer) FromBase(
	_ context.Context,
	targetRepo string,
	branch string,
	src locate.Location,
	baseBranch string,
) error {
	f.calls = append(f.calls, matCall{
		kind:       "fromBase",
		targetRepo: targetRepo,
		branch:     branch,
		src:        src,
		baseBranch: baseBranch,
	})

	return f.fromBaseErr
}

func openPR() *host.PullRequest {
	return &host.PullRequest{
		Number:  42,
		State:   "open",
		Title:   "Add frobnicator",
		Body:    "Implements frobnication.",
		HTMLURL: "https://github.com/org/widget/pull/42",
		Base: host.RefSide{
			Ref:          "main",
			SHA:          baseSHA,
			RepoFullName: "org/widget",
			RepoOwner:    "org",
			RepoName:     "widget",
		},
		Head: host.RefSide{
			Ref:          "feature",
			SHA:          headSHA,
			RepoFullName: "org/widget",
			RepoOwner:    "org",
			RepoName:     "widget",
		},
	}
}

const prURL = "https://github.com/org/widget/pull/42"

func newConfig(
	fh *fakeHost,
	fm *fakeMaterializer,
) runner.Config {
	return runner.Config{
		Host:         fh,
		Materializer: fm,
		Org:          "mirror-org",
	}
}

func TestRun_happy_path(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.NoError(t, err)
	require.NotNil(t, rep)

	assert.Equal(t, "org-widget", rep.MirrorRepo)
	assert.True(t, rep.RepoCreated)
	assert.Equal(
		t, "Copy of org/widget", fh.createdDesc,
	)

	require.Len(t, fm.calls, 2)

	orphan := fm.calls[0]
	assert.Equal(t, "orphan", orphan.kind)
	assert.Equal(t, "org-widget", orphan.targetRepo)
	assert.Equal(t, "main-42", orphan.branch)
	assert.Equal(t, locate.Location{
		Owner: "org",
		Repo:  "widget",
		SHA:   baseSHA,
	}, orphan.src)

	child := fm.calls[1]
	assert.Equal(t, "fromBase", child.kind)
	assert.Equal(t, "pr-42", child.branch)
	assert.Equal(t, "main-42", child.baseBranch)
	assert.Equal(t, headSHA, child.src.SHA)

	assert.True(t, rep.BaseBranch.Created)
	assert.True(t, rep.PRBranch.Created)
	assert.True(t, rep.PullRequestOpened)

	require.Len(t, fh.createdPR, 4)
	assert.Equal(t, "pr-42", fh.createdPR[1])
	assert.Equal(t, "main-42", fh.createdPR[2])
	assert.Contains(
		t, fh.createdPR[3],
		"**Original PR:** `"+prURL+"`",
	)
}

func TestRun_idempotent_second_run(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fh.repos["mirror-org/org-widget"] = true
	fh.branches["org-widget/main-42"] = true
	fh.branches["org-widget/pr-42"] = true

	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.NoError(t, err)

	// Zero materialization calls: both branches were
	// observed and skipped.
	assert.Empty(t, fm.calls)
	assert.False(t, rep.RepoCreated)
	assert.True(t, rep.BaseBranch.Existed)
	assert.True(t, rep.PRBranch.Existed)
	assert.NotContains(t, fh.calls, "CreateRepo")

	// The PR is still attempted; the host treats an
	// existing one as success.
	assert.True(t, rep.PullRequestOpened)
}

func TestRun_fork_resolution(t *testing.T) {
	t.Parallel()

	pr := openPR()
	pr.Head.RepoFullName = "alice/widget"
	pr.Head.RepoOwner = "alice"

	fh := newFakeHost(pr)
	fm := &fakeMaterializer{}

	_, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.NoError(t, err)
	require.Len(t, fm.calls, 2)

	// Base state always comes from the base repository.
	assert.Equal(t, "org", fm.calls[0].src.Owner)

	// PR content comes from the fork.
	assert.Equal(t, "alice", fm.calls[1].src.Owner)
	assert.Equal(t, "widget", fm.calls[1].src.Repo)
	assert.Equal(t, headSHA, fm.calls[1].src.SHA)
}

func TestRun_pinned_commit(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(),
		newConfig(fh, fm),
		prURL+"/commits/"+pinSHA,
	)

	require.NoError(t, err)

	assert.Equal(
		t, "pr-42-44444444", rep.PRBranch.Name,
	)

	require.Len(t, fm.calls, 2)
	assert.Equal(t, pinSHA, fm.calls[1].src.SHA)

	// The base state is unaffected by pinning.
	assert.Equal(t, baseSHA, fm.calls[0].src.SHA)
}

func TestRun_malformed_reference(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(),
		newConfig(fh, fm),
		"https://github.com/org/widget",
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, ref.ErrMalformedRef)
	assert.Nil(t, rep)

	// No network calls were made.
	assert.Empty(t, fh.calls)
	assert.Empty(t, fm.calls)
}

func TestRun_base_failure_blocks_pr_branch(
	t *testing.T,
) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{
		orphanErr: errors.New("push: denied"),
	}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.Error(t, err)

	assert.Contains(
		t, rep.BaseBranch.Error, "denied",
	)
	assert.Equal(
		t,
		runner.ErrBaseBranchMissing.Error(),
		rep.PRBranch.Error,
	)

	// FromBase was never attempted against the missing
	// base.
	require.Len(t, fm.calls, 1)
	assert.Equal(t, "orphan", fm.calls[0].kind)

	// No pull request without both branches.
	assert.NotContains(t, fh.calls, "CreatePullRequest")
}

func TestRun_pr_branch_failure_is_independent(
	t *testing.T,
) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{
		fromBaseErr: errors.New("archive: bad object"),
	}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.Error(t, err)

	// The base branch was still created.
	assert.True(t, rep.BaseBranch.Created)
	assert.Contains(
		t, rep.PRBranch.Error, "bad object",
	)
	assert.NotContains(t, fh.calls, "CreatePullRequest")
}

func TestRun_existing_base_with_new_pr_branch(
	t *testing.T,
) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fh.repos["mirror-org/org-widget"] = true
	fh.branches["org-widget/main-42"] = true

	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.NoError(t, err)

	assert.True(t, rep.BaseBranch.Existed)
	assert.True(t, rep.PRBranch.Created)

	require.Len(t, fm.calls, 1)
	assert.Equal(t, "fromBase", fm.calls[0].kind)
	assert.Equal(t, "main-42", fm.calls[0].baseBranch)
}

func TestRun_pr_creation_failure_not_fatal(
	t *testing.T,
) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fh.createPRErr = errors.New("403 forbidden")

	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	// Branch creation succeeding is the primary success
	// criterion.
	require.NoError(t, err)
	assert.False(t, rep.PullRequestOpened)
	assert.Contains(
		t, rep.PullRequestError, "forbidden",
	)
}

func TestRun_provision_failure_is_fatal(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fh.createRepoErr = &host.StatusError{
		Status: 403,
		Body:   "must be an owner",
	}

	fm := &fakeMaterializer{}

	rep, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.Error(t, err)
	assert.ErrorContains(t, err, "must be an owner")
	require.NotNil(t, rep)
	assert.Empty(t, fm.calls)
}

func TestRun_fetch_failure_is_fatal(t *testing.T) {
	t.Parallel()

	fh := newFakeHost(nil)
	fh.repos["mirror-org/org-widget"] = true
	fh.getPRErr = &host.StatusError{
		Status: 500,
		Body:   "server error",
	}

	fm := &fakeMaterializer{}

	_, err := runner.Run(
		context.Background(), newConfig(fh, fm), prURL,
	)

	require.Error(t, err)
	assert.ErrorContains(t, err, "server error")
	assert.Empty(t, fm.calls)
}

func TestRun_merge_parent_option(t *testing.T) {
	t.Parallel()

	pr := openPR()
	pr.State = "closed"
	pr.Merged = true
	pr.MergeCommitSHA = mergSHA

	fh := newFakeHost(pr)
	fh.parents = []string{baseSHA, headSHA}

	fm := &fakeMaterializer{}

	cfg := newConfig(fh, fm)
	cfg.UseMergeParent = true

	_, err := runner.Run(
		context.Background(), cfg, prURL,
	)

	require.NoError(t, err)
	assert.Contains(t, fh.calls, "CommitParents")

	require.Len(t, fm.calls, 2)
	assert.Equal(t, baseSHA, fm.calls[0].src.SHA)
}

func TestRun_merge_parent_ignored_for_open_pr(
	t *testing.T,
) {
	t.Parallel()

	fh := newFakeHost(openPR())
	fm := &fakeMaterializer{}

	cfg := newConfig(fh, fm)
	cfg.UseMergeParent = true

	_, err := runner.Run(
		context.Background(), cfg, prURL,
	)

	require.NoError(t, err)
	assert.NotContains(t, fh.calls, "CommitParents")
}

func TestBranchNaming(t *testing.T) {
	t.Parallel()

	assert.Equal(
		t,
		"main-42",
		runner.BaseBranchNameForTest("main", 42),
	)
	assert.Equal(
		t,
		"develop-7",
		runner.BaseBranchNameForTest("develop", 7),
	)

	assert.Equal(
		t,
		"pr-42",
		runner.PRBranchNameForTest(ref.Ref{Number: 42}),
	)
	assert.Equal(
		t,
		"pr-42-44444444",
		runner.PRBranchNameForTest(ref.Ref{
			Number:    42,
			CommitSHA: pinSHA,
		}),
	)

	assert.Equal(
		t,
		"org-widget",
		runner.MirrorRepoNameForTest("org", "widget"),
	)
	assert.Equal(
		t,
		"Copy of org/widget",
		runner.MirrorDescriptionForTest(
			"org", "widget",
		),
	)
}
