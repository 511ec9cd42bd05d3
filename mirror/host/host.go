// Package host defines the remote repository host
// capability consumed by the mirroring workflow.
//
// A Host answers existence questions about repositories and
// branches, fetches pull request snapshots, and creates
// repositories and pull requests inside the mirror
// organization. Implementations exist for GitHub and GitLab
// in sub-packages.
//
// Pattern: Strategy -- swap git hosting platform without
// changing the mirroring logic.
package host

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound reports that a remote resource does not
// exist. A missing repository or branch is usually a valid
// negative, not a failure.
var ErrNotFound = errors.New("remote resource not found")

// StatusError reports a remote API call that failed with a
// non-2xx status. The remote status and body are surfaced
// verbatim.
type StatusError struct {
	// Status is the HTTP status code of the response.
	Status int
	// Body is the raw response body.
	Body string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf(
			"remote returned status %d", e.Status,
		)
	}

	return fmt.Sprintf(
		"remote returned status %d: %s", e.Status, body,
	)
}

// RefSide describes one side (base or head) of a pull
// request.
type RefSide struct {
	// Ref is the branch name.
	Ref string
	// SHA is the commit the side pointed at when the
	// snapshot was fetched.
	SHA string
	// RepoFullName is the owner-qualified repository name
	// (e.g. "org/widget").
	RepoFullName string
	// RepoOwner is the repository owner.
	RepoOwner string
	// RepoName is the repository name without owner.
	RepoName string
}

// PullRequest is a read-only snapshot of a pull request as
// reported by the hosting platform.
type PullRequest struct {
	// Number is the pull request number.
	Number int
	// State is the platform state string (e.g. "open",
	// "closed").
	State string
	// Merged reports whether the pull request has been
	// merged.
	Merged bool
	// MergeCommitSHA is the merge commit, empty when the
	// pull request is unmerged.
	MergeCommitSHA string
	// Title is the pull request title.
	Title string
	// Body is the pull request description.
	Body string
	// HTMLURL is the canonical web URL.
	HTMLURL string
	// Base is the branch the pull request targets.
	Base RefSide
	// Head is the branch holding the proposed changes.
	Head RefSide
}

// Host is the remote repository host capability.
//
// Get operations report a missing resource via ErrNotFound
// (GetRepo) or a false result (GetBranch); other non-2xx
// responses surface as *StatusError. Create operations
// treat "already exists" responses as success so that
// concurrent or repeated runs converge.
type Host interface {
	// GetRepo checks that owner/repo exists. Returns nil
	// when it does and ErrNotFound when it does not.
	GetRepo(ctx context.Context, owner, repo string) error

	// CreateRepo creates a private repository with the
	// given name and description in the configured
	// organization, with issues enabled and wiki and
	// projects disabled.
	CreateRepo(
		ctx context.Context,
		name string,
		description string,
	) error

	// GetPullRequest fetches a pull request snapshot.
	GetPullRequest(
		ctx context.Context,
		owner string,
		repo string,
		number int,
	) (*PullRequest, error)

	// GetBranch reports whether the branch exists in
	// owner/repo.
	GetBranch(
		ctx context.Context,
		owner string,
		repo string,
		branch string,
	) (bool, error)

	// CommitParents returns the parent SHAs of a commit in
	// order. A merge commit's first parent is the state of
	// the target branch before the merge.
	CommitParents(
		ctx context.Context,
		owner string,
		repo string,
		sha string,
	) ([]string, error)

	// CreatePullRequest opens a pull request from branch
	// head into branch base in owner/repo.
	CreatePullRequest(
		ctx context.Context,
		owner string,
		repo string,
		head string,
		base string,
		title string,
		body string,
	) error
}
