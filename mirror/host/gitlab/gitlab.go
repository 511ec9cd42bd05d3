// Package gitlab implements the host.Host capability on
// GitLab (cloud or self-managed), mapping projects to
// repositories and merge requests to pull requests.
package gitlab

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	gl "gitlab.com/gitlab-org/api/client-go"

	"github.com/JulianEgbertMasterThesis/pr-mirror/mirror/host"
)

// Config holds the settings needed to create a GitLab
// host.
type Config struct {
	// AccessToken is a personal or group access token used
	// for authentication.
	AccessToken string
	// Org is the group that hosts mirror projects.
	Org string
	// Host is the base URL of the GitLab instance
	// (e.g. "https://gitlab.example.com"). Leave empty for
	// gitlab.com.
	Host string
}

// Hub talks to the GitLab REST API.
//
// Pattern: Strategy -- implements host.Host.
type Hub struct {
	client *gl.Client
	org    string
}

// NewHub validates cfg and returns a Hub ready to serve
// host operations.
func NewHub(cfg Config) (*Hub, error) {
	const errCtx = "creating gitlab host"

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

	opts := []gl.ClientOptionFunc{}
	if cfg.Host != "" {
		opts = append(opts, gl.WithBaseURL(cfg.Host))
	}

	client, err := gl.NewClient(cfg.AccessToken, opts...)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: new client: %w", errCtx, err,
		)
	}

	return &Hub{
		client: client,
		org:    cfg.Org,
	}, nil
}

// GetRepo checks that the project owner/repo exists.
func (h *Hub) GetRepo(
	ctx context.Context,
	owner string,
	repo string,
) error {
	const errCtx = "getting gitlab project"

	_, resp, err := h.client.Projects.GetProject(
		owner+"/"+repo, nil, gl.WithContext(ctx),
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

// CreateRepo creates a private project in the mirror
// group. A response reporting that the name is taken is
// treated as success so that racing runs converge.
func (h *Hub) CreateRepo(
	ctx context.Context,
	name string,
	description string,
) error {
	const errCtx = "creating gitlab project"

	group, resp, err := h.client.Groups.GetGroup(
		h.org, nil, gl.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf(
			"%s: resolve group %q: %w",
			errCtx, h.org, statusErr(resp, err),
		)
	}

	opts := &gl.CreateProjectOptions{
		Name:        gl.Ptr(name),
		NamespaceID: gl.Ptr(group.ID),
		Description: gl.Ptr(description),
		Visibility:  gl.Ptr(gl.PrivateVisibility),
		IssuesAccessLevel: gl.Ptr(
			gl.EnabledAccessControl,
		),
		WikiAccessLevel: gl.Ptr(
			gl.DisabledAccessControl,
		),
	}

	created, resp, err := h.client.Projects.CreateProject(
		opts, gl.WithContext(ctx),
	)
	if err == nil {
		slog.Info(
			"created mirror project",
			"project", created.PathWithNamespace,
		)

		return nil
	}

	if nameTaken(resp, err) {
		slog.Info(
			"mirror project already exists",
			"project", name,
		)

		return nil
	}

	return fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// GetPullRequest fetches a merge request snapshot.
func (h *Hub) GetPullRequest(
	ctx context.Context,
	owner string,
	repo string,
	number int,
) (*host.PullRequest, error) {
	const errCtx = "getting gitlab merge request"

	pid := owner + "/" + repo

	mr, resp, err := h.client.MergeRequests.GetMergeRequest(
		pid, int64(number), nil, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, statusErr(resp, err),
		)
	}

	baseSHA := ""
	if mr.DiffRefs != (gl.MergeRequestDiffRefs{}) {
		baseSHA = mr.DiffRefs.BaseSha
	}

	pr := &host.PullRequest{
		Number:         int(mr.IID),
		State:          mr.State,
		Merged:         mr.State == "merged",
		MergeCommitSHA: mr.MergeCommitSHA,
		Title:          mr.Title,
		Body:           mr.Description,
		HTMLURL:        mr.WebURL,
		Base: host.RefSide{
			Ref:          mr.TargetBranch,
			SHA:          baseSHA,
			RepoFullName: pid,
			RepoOwner:    owner,
			RepoName:     repo,
		},
		Head: host.RefSide{
			Ref:          mr.SourceBranch,
			SHA:          mr.SHA,
			RepoFullName: pid,
			RepoOwner:    owner,
			RepoName:     repo,
		},
	}

	// Cross-project merge requests hold their content in
	// the source project.
	if mr.SourceProjectID != 0 &&
		mr.SourceProjectID != mr.TargetProjectID {
		head, headErr := h.projectSide(
			ctx, int(mr.SourceProjectID),
		)
		if headErr != nil {
			return nil, fmt.Errorf(
				"%s: %w", errCtx, headErr,
			)
		}

		head.Ref = mr.SourceBranch
		head.SHA = mr.SHA
		pr.Head = head
	}

	return pr, nil
}

// projectSide resolves a project ID into the repository
// identity fields of a RefSide.
func (h *Hub) projectSide(
	ctx context.Context,
	projectID int,
) (host.RefSide, error) {
	const errCtx = "resolving gitlab project"

	project, resp, err := h.client.Projects.GetProject(
		projectID, nil, gl.WithContext(ctx),
	)
	if err != nil {
		return host.RefSide{}, fmt.Errorf(
			"%s: %w", errCtx, statusErr(resp, err),
		)
	}

	side := host.RefSide{
		RepoFullName: project.PathWithNamespace,
		RepoName:     project.Path,
	}

	if project.Namespace != nil {
		side.RepoOwner = project.Namespace.FullPath
	}

	return side, nil
}

// GetBranch reports whether the branch exists.
func (h *Hub) GetBranch(
	ctx context.Context,
	owner string,
	repo string,
	branch string,
) (bool, error) {
	const errCtx = "getting gitlab branch"

	_, resp, err := h.client.Branches.GetBranch(
		owner+"/"+repo, branch, gl.WithContext(ctx),
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
	const errCtx = "getting gitlab commit"

	commit, resp, err := h.client.Commits.GetCommit(
		owner+"/"+repo, sha, nil, gl.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf(
			"%s: %w", errCtx, statusErr(resp, err),
		)
	}

	return commit.ParentIDs, nil
}

// CreatePullRequest creates a merge request from branch
// head into branch base. A 409 (merge request already
// open for the pair) is treated as success.
func (h *Hub) CreatePullRequest(
	ctx context.Context,
	owner string,
	repo string,
	head string,
	base string,
	title string,
	body string,
) error {
	const errCtx = "creating gitlab merge request"

	opts := &gl.CreateMergeRequestOptions{
		Title:        &title,
		Description:  &body,
		SourceBranch: &head,
		TargetBranch: &base,
	}

	created, resp, err :=
		h.client.MergeRequests.CreateMergeRequest(
			owner+"/"+repo, opts, gl.WithContext(ctx),
		)
	if err == nil {
		slog.Info(
			"created merge request",
			"url", created.WebURL,
		)

		return nil
	}

	if resp != nil &&
		resp.StatusCode == http.StatusConflict {
		slog.Info("reusing existing merge request")

		return nil
	}

	return fmt.Errorf(
		"%s: %w", errCtx, statusErr(resp, err),
	)
}

// nameTaken reports whether a failed project creation
// means the name is already in use.
func nameTaken(resp *gl.Response, err error) bool {
	if resp == nil {
		return false
	}

	if resp.StatusCode == http.StatusConflict {
		return true
	}

	if resp.StatusCode != http.StatusBadRequest {
		return false
	}

	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "already been taken") ||
		strings.Contains(msg, "already exists")
}

// statusErr converts a failed client call into a
// host.StatusError carrying the remote status. Transport
// failures (nil response) pass through unchanged.
func statusErr(resp *gl.Response, err error) error {
	if resp == nil {
		return err
	}

	return &host.StatusError{
		Status: resp.StatusCode,
		Body:   err.Error(),
	}
}
