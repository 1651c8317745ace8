// internal/gh/client.go
package gh

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"github-mirror/internal/model"
)

const (
	// Upstream page size for every collection except releases.
	perPage = 100
	// GitHub serves release listings in smaller pages.
	releasesPerPage = 50
)

// Client is a wrapper around the go-github client, authenticated with one
// owner's OAuth access token.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// WithBaseURL points the client at an alternate API root. Used by tests.
func (c *Client) WithBaseURL(url string) error {
	ghc, err := c.gh.WithEnterpriseURLs(url, url)
	if err != nil {
		return err
	}
	c.gh = ghc
	return nil
}

// AuthenticatedUser fetches the profile of the token's owner.
func (c *Client) AuthenticatedUser(ctx context.Context) (model.ExternalUser, error) {
	u, _, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return model.ExternalUser{}, err
	}
	return toExternalUser(u), nil
}

// Organizations fetches all organizations of the authenticated user.
func (c *Client) Organizations(ctx context.Context) ([]model.Organization, error) {
	raw, err := collectPages(ctx, perPage, 0, func(ctx context.Context, page int) ([]*github.Organization, error) {
		c.logger.Debug("Fetching organizations page", "page", page)
		orgs, _, err := c.gh.Organizations.List(ctx, "", &github.ListOptions{PerPage: perPage, Page: page})
		return orgs, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Organization, len(raw))
	for i, o := range raw {
		out[i] = toOrganization(o)
	}
	return out, nil
}

// OrgMembers fetches members of an organization. pageLimit caps how many
// pages are fetched (0 = all pages).
func (c *Client) OrgMembers(ctx context.Context, org string, pageLimit int) ([]model.ExternalUser, error) {
	raw, err := collectPages(ctx, perPage, pageLimit*perPage, func(ctx context.Context, page int) ([]*github.User, error) {
		c.logger.Debug("Fetching org members page", "org", org, "page", page)
		members, _, err := c.gh.Organizations.ListMembers(ctx, org, &github.ListMembersOptions{
			ListOptions: github.ListOptions{PerPage: perPage, Page: page},
		})
		return members, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.ExternalUser, len(raw))
	for i, u := range raw {
		out[i] = toExternalUser(u)
	}
	return out, nil
}

// Repositories fetches every repository accessible to the authenticated user.
func (c *Client) Repositories(ctx context.Context) ([]model.Repository, error) {
	raw, err := c.listRepositories(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]model.Repository, len(raw))
	for i, r := range raw {
		out[i] = toRepository(r)
	}
	return out, nil
}

// ForkedRepositories fetches the full names of every fork the authenticated
// user owns.
func (c *Client) ForkedRepositories(ctx context.Context) ([]string, error) {
	raw, err := c.listRepositories(ctx, "fork")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, r := range raw {
		// The type filter is advisory upstream; keep only true forks.
		if r.GetFork() {
			names = append(names, r.GetFullName())
		}
	}
	return names, nil
}

func (c *Client) listRepositories(ctx context.Context, repoType string) ([]*github.Repository, error) {
	return collectPages(ctx, perPage, 0, func(ctx context.Context, page int) ([]*github.Repository, error) {
		c.logger.Debug("Fetching repositories page", "page", page, "type", repoType)
		repos, _, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, &github.RepositoryListByAuthenticatedUserOptions{
			Type:        repoType,
			ListOptions: github.ListOptions{PerPage: perPage, Page: page},
		})
		return repos, err
	})
}

// ResolveParent maps a forked repository to its upstream parent's full name.
// A fork without a parent reference resolves to itself.
func (c *Client) ResolveParent(ctx context.Context, fullName string) (string, error) {
	owner, name := splitFullName(fullName)
	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return "", err
	}
	if parent := repo.GetParent(); parent != nil && parent.GetFullName() != "" {
		return parent.GetFullName(), nil
	}
	return fullName, nil
}

// Commits fetches commits for a repository, newest first as upstream returns
// them. maxItems of 0 means the full history.
func (c *Client) Commits(ctx context.Context, fullName string, maxItems int) ([]model.Commit, error) {
	owner, name := splitFullName(fullName)
	raw, err := collectPages(ctx, perPage, maxItems, func(ctx context.Context, page int) ([]*github.RepositoryCommit, error) {
		c.logger.Debug("Fetching commits page", "repo", fullName, "page", page)
		commits, _, err := c.gh.Repositories.ListCommits(ctx, owner, name, &github.CommitsListOptions{
			ListOptions: github.ListOptions{PerPage: perPage, Page: page},
		})
		return commits, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Commit, len(raw))
	for i, cm := range raw {
		out[i] = toCommit(fullName, cm)
	}
	return out, nil
}

// PullRequests fetches open and closed pull requests for a repository.
func (c *Client) PullRequests(ctx context.Context, fullName string, maxItems int) ([]model.PullRequest, error) {
	owner, name := splitFullName(fullName)
	raw, err := collectPages(ctx, perPage, maxItems, func(ctx context.Context, page int) ([]*github.PullRequest, error) {
		c.logger.Debug("Fetching pulls page", "repo", fullName, "page", page)
		pulls, _, err := c.gh.PullRequests.List(ctx, owner, name, &github.PullRequestListOptions{
			State:       "all",
			ListOptions: github.ListOptions{PerPage: perPage, Page: page},
		})
		return pulls, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.PullRequest, len(raw))
	for i, pr := range raw {
		out[i] = toPullRequest(fullName, pr)
	}
	return out, nil
}

// Issues fetches open and closed issues for a repository. The upstream issue
// listing also returns pull requests; those entries are excluded here, after
// pagination, so page-size termination still sees the raw page length.
func (c *Client) Issues(ctx context.Context, fullName string, maxItems int) ([]model.Issue, error) {
	owner, name := splitFullName(fullName)
	raw, err := collectPages(ctx, perPage, maxItems, func(ctx context.Context, page int) ([]*github.Issue, error) {
		c.logger.Debug("Fetching issues page", "repo", fullName, "page", page)
		issues, _, err := c.gh.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
			State:       "all",
			ListOptions: github.ListOptions{PerPage: perPage, Page: page},
		})
		return issues, err
	})
	if err != nil {
		return nil, err
	}
	var out []model.Issue
	for _, is := range raw {
		if is.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(fullName, is))
	}
	return out, nil
}

// Releases fetches all releases for a repository.
func (c *Client) Releases(ctx context.Context, fullName string) ([]model.Release, error) {
	owner, name := splitFullName(fullName)
	raw, err := collectPages(ctx, releasesPerPage, 0, func(ctx context.Context, page int) ([]*github.RepositoryRelease, error) {
		c.logger.Debug("Fetching releases page", "repo", fullName, "page", page)
		rels, _, err := c.gh.Repositories.ListReleases(ctx, owner, name, &github.ListOptions{
			PerPage: releasesPerPage,
			Page:    page,
		})
		return rels, err
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Release, len(raw))
	for i, r := range raw {
		out[i] = toRelease(fullName, r)
	}
	return out, nil
}

func splitFullName(fullName string) (owner, name string) {
	owner, name, _ = strings.Cut(fullName, "/")
	return owner, name
}

func toOrganization(o *github.Organization) model.Organization {
	name := o.GetName()
	if name == "" {
		name = o.GetLogin()
	}
	return model.Organization{
		OrgID:       o.GetID(),
		Login:       o.GetLogin(),
		Name:        name,
		Description: o.GetDescription(),
		URL:         o.GetHTMLURL(),
		ReposCount:  o.GetPublicRepos(),
		// Member counts are not part of the org list response; they stay
		// zero unless a later sync learns better.
	}
}

func toExternalUser(u *github.User) model.ExternalUser {
	name := u.GetName()
	if name == "" {
		name = u.GetLogin()
	}
	return model.ExternalUser{
		ExternalID: u.GetID(),
		Login:      u.GetLogin(),
		Name:       name,
		AvatarURL:  u.GetAvatarURL(),
		URL:        u.GetHTMLURL(),
	}
}

func toRepository(r *github.Repository) model.Repository {
	return model.Repository{
		RepoID:          r.GetID(),
		Name:            r.GetName(),
		FullName:        r.GetFullName(),
		Private:         r.GetPrivate(),
		URL:             r.GetHTMLURL(),
		Description:     r.GetDescription(),
		Language:        r.Language,
		ForksCount:      r.GetForksCount(),
		StarsCount:      r.GetStargazersCount(),
		OpenIssuesCount: r.GetOpenIssuesCount(),
	}
}

func toCommit(fullName string, c *github.RepositoryCommit) model.Commit {
	var committedAt *time.Time
	if d := c.GetCommit().GetAuthor().GetDate(); !d.IsZero() {
		t := d.Time
		committedAt = &t
	}
	return model.Commit{
		RepoFullName: fullName,
		SHA:          c.GetSHA(),
		Message:      c.GetCommit().GetMessage(),
		AuthorName:   c.GetCommit().GetAuthor().GetName(),
		AuthorLogin:  c.GetAuthor().GetLogin(),
		CommittedAt:  committedAt,
		URL:          c.GetHTMLURL(),
	}
}

func toPullRequest(fullName string, pr *github.PullRequest) model.PullRequest {
	return model.PullRequest{
		RepoFullName: fullName,
		Number:       pr.GetNumber(),
		Title:        pr.GetTitle(),
		State:        pr.GetState(),
		AuthorLogin:  pr.GetUser().GetLogin(),
		CreatedAt:    timestampPtr(pr.CreatedAt),
		MergedAt:     timestampPtr(pr.MergedAt),
		URL:          pr.GetHTMLURL(),
	}
}

func toIssue(fullName string, is *github.Issue) model.Issue {
	return model.Issue{
		RepoFullName: fullName,
		Number:       is.GetNumber(),
		Title:        is.GetTitle(),
		State:        is.GetState(),
		AuthorLogin:  is.GetUser().GetLogin(),
		CreatedAt:    timestampPtr(is.CreatedAt),
		ClosedAt:     timestampPtr(is.ClosedAt),
		URL:          is.GetHTMLURL(),
	}
}

func toRelease(fullName string, r *github.RepositoryRelease) model.Release {
	return model.Release{
		RepoFullName: fullName,
		ReleaseID:    r.GetID(),
		TagName:      r.GetTagName(),
		Name:         r.GetName(),
		Body:         r.GetBody(),
		CreatedAt:    timestampPtr(r.CreatedAt),
		PublishedAt:  timestampPtr(r.PublishedAt),
		URL:          r.GetHTMLURL(),
	}
}

func timestampPtr(ts *github.Timestamp) *time.Time {
	if ts == nil || ts.IsZero() {
		return nil
	}
	t := ts.Time
	return &t
}
