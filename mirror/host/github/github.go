// Package github implements the host.Host capability on
// the GitHub REST API (cloud or enterprise). Configure with
// a Config containing a personal access token. Set
// EnterpriseHost for GitHub Enterprise installations.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v68/github"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
)

// Config holds the settings needed to create a GitHub
// host.
type Config struct {
	// AccessToken is a personal access token or GitHub App
	// token used for authentication.
	AccessToken string
	// Org is the organization that hosts mirror
	// repositories.
	Org string
	// EnterpriseHost is an optional GitHub Enterprise
	// hostname (e.g. "git.corp.example.com"). Leave empty
	// for github.com.
	EnterpriseHost string
}

// Hub talks to the GitHub REST API.
//
// Pattern: Strategy -- implements host.Host.
type Hub struct {
	client *gh.Client
	org    string
}

// NewHub validates cfg and returns a Hub ready to serve
// host operations.
func NewHub(cfg Config) (*Hub, error) {
	const errCtx = "creating github host"

	if cfg.AccessToken == "" {
		return nil, fmt.Errorf(
			"%s: access token must be set", errCtx,
		)
	}

	if cfg.Org == "" {
		return nil, fmt.Errorf(
			"%s: organization must be set", errCtx,
		)
	}

	client := gh.NewClient(nil).
		WithAuthToken(cfg.AccessToken)

	if cfg.EnterpriseHost != "" {
		baseURL := "https://" +
			cfg.EnterpriseHost + "/api/v3/"
		uploadURL := "https://" +
			cfg.EnterpriseHost + "/api/uploads/"

		var err error

		client, err = client.WithEnterpriseURLs(
			baseURL, uploadURL,
		)
		if err != nil {
			return nil, fmt.Errorf(
				"%s: enterprise urls: %w", errCtx, err,
			)
		}
	}

	return &Hub{
		client: client,
		org:    cfg.Org,
	}, nil
}

// GetRepo checks that owner/repo exists.
func (h *Hub) GetRepo(
	ctx context.Context,
	owner string,
	repo string,
) error {
	const errCtx = "getting github repository"

	_, resp, err := h.client.Repositories.Get(
		ctx, owner, repo,
	)
	if err == nil {
		return nil
	}

	if resp != nil &&
		resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf(
			"%s: %s/%s: %w",
			errCtx, owner, repo, host.ErrNotFound,
		)
	}

	return fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// CreateRepo creates a private repository in the mirror
// organization. A 422 reporting that the name is taken is
// treated as success so that racing runs converge.
func (h *Hub) CreateRepo(
	ctx context.Context,
	name string,
	description string,
) error {
	const errCtx = "creating github repository"

	repo := &gh.Repository{
		Name:        gh.String(name),
		Description: gh.String(description),
		Private:     gh.Bool(true),
		HasIssues:   gh.Bool(true),
		HasWiki:     gh.Bool(false),
		HasProjects: gh.Bool(false),
	}

	created, resp, err := h.client.Repositories.Create(
		ctx, h.org, repo,
	)
	if err == nil {
		slog.Info(
			"created mirror repository",
			"repo", created.GetFullName(),
		)

		return nil
	}

	if resp != nil &&
		resp.StatusCode ==
			http.StatusUnprocessableEntity &&
		errSaysAlreadyExists(err) {
		slog.Info(
			"mirror repository already exists",
			"repo", name,
		)

		return nil
	}

	return fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// GetPullRequest fetches a pull request snapshot.
func (h *Hub) GetPullRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*host.PullRequest, error) {
	const errCtx = "getting github pull request"

	pr, resp, err := h.client.PullRequests.Get(
		ctx, owner, repo, number,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, statusErr(resp, err),
		)
	}

	return &host.PullRequest{
		Number:         pr.GetNumber(),
		State:          pr.GetState(),
		Merged:         pr.GetMerged(),
		MergeCommitSHA: pr.GetMergeCommitSHA(),
		Title:          pr.GetTitle(),
		Body:           pr.GetBody(),
		HTMLURL:        pr.GetHTMLURL(),
		Base:           refSide(pr.GetBase()),
		Head:           refSide(pr.GetHead()),
	}, nil
}

// GetBranch reports whether the branch exists.
func (h *Hub) GetBranch(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (bool, error) {
	const errCtx = "getting github branch"

	_, resp, err := h.client.Repositories.GetBranch(
		ctx, owner, repo, branch, 0,
	)
	if err == nil {
		return true, nil
	}

	if resp != nil &&
		resp.StatusCode == http.StatusNotFound {
		return false, nil
	}

	return false, fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// CommitParents returns the parent SHAs of a commit in
// order.
func (h *Hub) CommitParents(
	ctx context.Context,
	owner string,
	repo string,
	sha string,
) ([]string, error) {
	const errCtx = "getting github commit"

	commit, resp, err := h.client.Repositories.GetCommit(
		ctx, owner, repo, sha, nil,
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, statusErr(resp, err),
		)
	}

	parents := make([]string, 0, len(commit.Parents))
	for _, parent := range commit.Parents {
		parents = append(parents, parent.GetSHA())
	}

	return parents, nil
}

// CreatePullRequest creates a pull request from branch
// head into branch base. A 422 whose message reports an
// existing pull request for the pair is treated as
// success.
func (h *Hub) CreatePullRequest(
	ctx context.Context,
	owner string,
	repo string,
	head string,
	base string,
	title string,
	body string,
) error {
	const errCtx = "creating github pull request"

	pr := &gh.NewPullRequest{
		Title: &title,
		Head:  &head,
		Base:  &base,
		Body:  &body,
	}

	created, resp, err := h.client.PullRequests.Create(
		ctx, owner, repo, pr,
	)
	if err == nil {
		slog.Info(
			"created pull request",
			"url", created.GetHTMLURL(),
		)

		return nil
	}

	if resp != nil &&
		resp.StatusCode ==
			http.StatusUnprocessableEntity &&
		errSaysAlreadyExists(err) {
		slog.Info("reusing existing pull request")

		return nil
	}

	return fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// refSide maps a go-github pull request branch to a
// host.RefSide.
func refSide(branch *gh.PullRequestBranch) host.RefSide {
	repo := branch.GetRepo()

	return host.RefSide{
		Ref:          branch.GetRef(),
		SHA:          branch.GetSHA(),
		RepoFullName: repo.GetFullName(),
		RepoOwner:    repo.GetOwner().GetLogin(),
		RepoName:     repo.GetName(),
	}
}

// errSaysAlreadyExists reports whether a go-github error
// response carries an "already exists" message, either at
// the top level or in one of its error entries.
func errSaysAlreadyExists(err error) bool {
	var ger *gh.ErrorResponse
	if !errors.As(err, &ger) {
		return false
	}

	if containsAlreadyExists(ger.Message) {
		return true
	}

	for _, entry := range ger.Errors {
		if containsAlreadyExists(entry.Message) {
			return true
		}
	}

	return false
}

// containsAlreadyExists performs the case-insensitive
// message check.
func containsAlreadyExists(msg string) bool {
	return strings.Contains(
		strings.ToLower(msg), "already exists",
	)
}

// statusErr converts a failed go-github call into a
// host.StatusError carrying the remote status and body.
// Transport-level failures (nil response) pass through
// unchanged.
func statusErr(resp *gh.Response, err error) error {
	if resp == nil {
		return err
	}

	var ger *gh.ErrorResponse
	if errors.As(err, &ger) {
		return &host.StatusError{
			Status: resp.StatusCode,
			Body:   ger.Message,
		}
	}

	return &host.StatusError{
		Status: resp.StatusCode,
		Body:   err.Error(),
	}
}
