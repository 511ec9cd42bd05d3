package git_test

import (
	"context"
	"os"
	oe "os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/git"
)

func TestClone_and_checkout(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	initGitRepo(t, src)

	dir := filepath.Join(t.TempDir(), "clone")

	rp, err := git.Clone(
		context.Background(), src, dir,
	)

	require.NoError(t, err)
	require.NotNil(t, rp)

	err = rp.Checkout(context.Background(), "main")
	assert.NoError(t, err)
}

func TestClone_failure(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "clone")

	_, err := git.Clone(
		context.Background(),
		filepath.Join(t.TempDir(), "does-not-exist"),
		dir,
	)

	require.Error(t, err)

	var serr *git.StepError

	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "clone", serr.Step)
}

func TestInit_creates_empty_history(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "work")

	rp, err := git.Init(context.Background(), dir)

	require.NoError(t, err)

	err = rp.SetIdentity(
		context.Background(), "Bot", "bot@example.com",
	)
	require.NoError(t, err)

	writeFile(t, dir, "a.txt", "hello\n")

	err = rp.AddAll(context.Background())
	require.NoError(t, err)

	committed, err := rp.Commit(
		context.Background(), "first",
	)
	require.NoError(t, err)
	assert.True(t, committed)

	// Exactly one commit, with no parent.
	count := gitOut(
		t, dir, "rev-list", "--count", "HEAD",
	)
	assert.Equal(t, "1", strings.TrimSpace(count))
}

func TestRepo_Commit_clean_tree(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	initGitRepo(t, dir)

	rp := &git.Repo{Dir: dir}

	committed, err := rp.Commit(
		context.Background(), "noop",
	)

	require.NoError(t, err)
	assert.False(t, committed)
}

func TestRepo_Archive_and_extract(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	initGitRepo(t, src)

	writeFile(t, src, "a.txt", "content-a\n")
	writeFile(
		t, src, ".github/workflows/ci.yml", "on: push\n",
	)
	gitCmd(t, src, "add", "-A")
	gitCmd(t, src, "commit", "-m", "add files")

	sha := strings.TrimSpace(
		gitOut(t, src, "rev-parse", "HEAD"),
	)

	srcRepo := &git.Repo{Dir: src}
	tarPath := filepath.Join(t.TempDir(), "tree.tar")

	err := srcRepo.ArchiveTo(
		context.Background(), sha, tarPath,
	)
	require.NoError(t, err)

	destDir := t.TempDir()
	dest := &git.Repo{Dir: destDir}

	err = dest.ExtractTar(
		context.Background(), tarPath,
	)
	require.NoError(t, err)

	by, err := os.ReadFile(
		filepath.Join(destDir, "a.txt"),
	)
	require.NoError(t, err)
	assert.Equal(t, "content-a\n", string(by))

	// The archive carries the CI directory; stripping is
	// a separate step.
	_, err = os.Stat(filepath.Join(destDir, ".github"))
	assert.NoError(t, err)
}

func TestRepo_ClearWorkTree_keeps_git(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	initGitRepo(t, dir)

	writeFile(t, dir, "a.txt", "x\n")
	writeFile(t, dir, "sub/b.txt", "y\n")

	rp := &git.Repo{Dir: dir}

	err := rp.ClearWorkTree()
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".git", entries[0].Name())
}

func TestRepo_RemoveTreeDir_missing_ok(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	initGitRepo(t, dir)

	rp := &git.Repo{Dir: dir}

	assert.NoError(t, rp.RemoveTreeDir(".github"))
}

func TestRepo_Push_head_refspec(t *testing.T) {
	t.Parallel()

	remote := t.TempDir()
	gitCmd(t, remote, "init", "--bare")

	dir := t.TempDir()
	initGitRepo(t, dir)

	rp := &git.Repo{Dir: dir}

	err := rp.AddRemote(
		context.Background(), "origin", remote,
	)
	require.NoError(t, err)

	err = rp.Push(
		context.Background(), "origin", "HEAD:main-42",
	)
	require.NoError(t, err)

	refs := gitOut(t, remote, "branch", "--list")
	assert.Contains(t, refs, "main-42")
}

func TestRepo_LastMessage(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	initGitRepo(t, dir)

	rp := &git.Repo{Dir: dir}

	msg, err := rp.LastMessage(context.Background())

	require.NoError(t, err)
	assert.Contains(t, msg, "initial")
}

func TestStepError_message(t *testing.T) {
	t.Parallel()

	serr := &git.StepError{
		Step:   "push",
		Output: "remote: denied\n",
		Err:    assert.AnError,
	}

	assert.Contains(t, serr.Error(), "push")
	assert.Contains(t, serr.Error(), "remote: denied")
	assert.ErrorIs(t, serr, assert.AnError)
}

// initGitRepo creates a git repository with one initial
// commit. Git hooks are disabled to avoid interference
// from pre-commit hooks.
func initGitRepo(tb testing.TB, dir string) {
	tb.Helper()

	cmds := [][]string{
		{"init", "-b", "main"},
		{"config", "user.email", "test@test.com"},
		{"config", "user.name", "Test"},
		// Disable hooks so pre-commit scanners do not
		// interfere with tests.
		{"config", "core.hooksPath", "/dev/null"},
		{"commit", "--allow-empty", "-m", "initial"},
	}

	for _, args := range cmds {
		gitCmd(tb, dir, args...)
	}
}

// gitCmd runs a git command in the given directory.
func gitCmd(
	tb testing.TB,
	dir string,
	args ...string,
) {
	tb.Helper()

	_ = gitOut(tb, dir, args...)
}

// gitOut runs a git command and returns its combined
// output.
func gitOut(
	tb testing.TB,
	dir string,
	args ...string,
) string {
	tb.Helper()

	//nolint:gosec // test helper
	cmd := oe.CommandContext(
		context.Background(), "git", args...,
	)
	cmd.Dir = dir

	out, err := cmd.CombinedOutput()
	if err != nil {
		tb.Fatalf(
			"git %v failed: %s: %v",
			args, string(out), err,
		)
	}

	return string(out)
}

// writeFile writes a file under dir, creating parent
// directories as needed.
func writeFile(
	tb testing.TB,
	dir string,
	rel string,
	content string,
) {
	tb.Helper()

	path := filepath.Join(dir, rel)

	err := os.MkdirAll(filepath.Dir(path), 0o750)
	require.NoError(tb, err)

	//nolint:gosec // test file
	err = os.WriteFile(path, []byte(content), 0o600)
	require.NoError(tb, err)
}
