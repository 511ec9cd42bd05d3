// Package locate decides which repository and commit hold
// the content to mirror for a given pull request snapshot.
package locate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
)

// Location identifies a commit inside a specific
// repository. The owner/repo may differ from the pull
// request's base repository when the pull request comes
// from a fork.
type Location struct {
	// Owner is the owner of the repository holding the
	// commit.
	Owner string
	// Repo is the repository name.
	Repo string
	// SHA is the commit holding the tree to mirror.
	SHA string
}

// Content resolves the repository and commit holding the
// pull request's content. A fork-based pull request (head
// repository differs from base repository) holds its
// content in the head repository; otherwise the base
// repository is used. A pinned SHA takes precedence over
// the head SHA and is assumed to live in the same
// repository as the head.
func Content(
	pr *host.PullRequest,
	pinnedSHA string,
) Location {
	sha := pinnedSHA
	if sha == "" {
		sha = pr.Head.SHA
	}

	if pr.Head.RepoFullName != pr.Base.RepoFullName {
		slog.Info(
			"pull request is fork-based",
			"head", pr.Head.RepoFullName,
			"base", pr.Base.RepoFullName,
		)

		return Location{
			Owner: pr.Head.RepoOwner,
			Repo:  pr.Head.RepoName,
			SHA:   sha,
		}
	}

	slog.Info(
		"pull request is within one repository",
		"repo", pr.Base.RepoFullName,
	)

	return Location{
		Owner: pr.Base.RepoOwner,
		Repo:  pr.Base.RepoName,
		SHA:   sha,
	}
}

// BaseSHA returns the base-branch commit the pull request
// was originally targeted at. The snapshot's base SHA is
// used verbatim: it captures the historical base state, not
// the possibly advanced current tip.
func BaseSHA(pr *host.PullRequest) string {
	return pr.Base.SHA
}

// MergeParentSHA resolves the state of the target branch
// just before a merge: the first parent of the merge
// commit.
func MergeParentSHA(
	ctx context.Context,
	h host.Host,
	owner string,
	repo string,
	mergeSHA string,
) (string, error) {
	const errCtx = "resolving merge parent"

	parents, err := h.CommitParents(
		ctx, owner, repo, mergeSHA,
	)
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(parents) == 0 {
		return "", fmt.Errorf(
			"%s: merge commit %s has no parents",
			errCtx, mergeSHA,
		)
	}

	return parents[0], nil
}
