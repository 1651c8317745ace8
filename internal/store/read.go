// internal/store/read.go
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github-mirror/internal/model"
)

// selector describes one entity table for the generic listing helpers:
// which columns to return and which string columns free-text search covers.
type selector struct {
	table      string
	columns    string
	searchCols []string
}

var (
	orgSelector = selector{
		table:      "organizations",
		columns:    "owner_id, org_id, login, name, description, url, repos_count, member_count",
		searchCols: []string{"login", "name", "description", "url"},
	}
	repoSelector = selector{
		table:      "repositories",
		columns:    "owner_id, repo_id, name, full_name, private, url, description, language, forks_count, stars_count, open_issues_count",
		searchCols: []string{"name", "full_name", "url", "description", "language"},
	}
	commitSelector = selector{
		table:      "commits",
		columns:    "owner_id, repo_full_name, sha, message, author_name, author_login, committed_at, url",
		searchCols: []string{"repo_full_name", "sha", "message", "author_name", "author_login", "url"},
	}
	pullSelector = selector{
		table:      "pull_requests",
		columns:    "owner_id, repo_full_name, number, title, state, author_login, created_at, merged_at, url",
		searchCols: []string{"repo_full_name", "title", "state", "author_login", "url"},
	}
	issueSelector = selector{
		table:      "issues",
		columns:    "owner_id, repo_full_name, number, title, state, author_login, created_at, closed_at, url",
		searchCols: []string{"repo_full_name", "title", "state", "author_login", "url"},
	}
	releaseSelector = selector{
		table:      "releases",
		columns:    "owner_id, repo_full_name, release_id, tag_name, name, body, created_at, published_at, url",
		searchCols: []string{"repo_full_name", "tag_name", "name", "body", "url"},
	}
	userSelector = selector{
		table:      "external_users",
		columns:    "owner_id, external_id, login, name, avatar_url, url",
		searchCols: []string{"login", "name", "avatar_url", "url"},
	}
)

// listRows runs the paginated, optionally searched listing for one entity
// table and returns the page plus the total matching row count.
func listRows[T any](ctx context.Context, pool *pgxpool.Pool, sel selector, ownerID string, q model.ListQuery) ([]T, int64, error) {
	q = q.Normalize()

	where := "owner_id = $1"
	args := []any{ownerID}
	if q.Search != "" {
		terms := make([]string, len(sel.searchCols))
		for i, col := range sel.searchCols {
			terms[i] = col + " ILIKE '%' || $2 || '%'"
		}
		where += " AND (" + strings.Join(terms, " OR ") + ")"
		args = append(args, q.Search)
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT count(*) FROM %s WHERE %s", sel.table, where)
	if err := pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id LIMIT %d OFFSET %d",
		sel.columns, sel.table, where, q.Limit, q.Offset())
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// repoRows lists one sub-resource table for a single repository, ordered by
// its recency column.
func repoRows[T any](ctx context.Context, pool *pgxpool.Pool, sel selector, orderBy, ownerID, fullName string) ([]T, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = $1 AND repo_full_name = $2 ORDER BY %s DESC NULLS LAST",
		sel.columns, sel.table, orderBy)
	rows, err := pool.Query(ctx, query, ownerID, fullName)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[T])
}

func (s *PG) ListOrganizations(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Organization, int64, error) {
	return listRows[model.Organization](ctx, s.pool, orgSelector, ownerID, q)
}

func (s *PG) ListRepositories(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Repository, int64, error) {
	return listRows[model.Repository](ctx, s.pool, repoSelector, ownerID, q)
}

func (s *PG) ListCommits(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Commit, int64, error) {
	return listRows[model.Commit](ctx, s.pool, commitSelector, ownerID, q)
}

func (s *PG) ListPullRequests(ctx context.Context, ownerID string, q model.ListQuery) ([]model.PullRequest, int64, error) {
	return listRows[model.PullRequest](ctx, s.pool, pullSelector, ownerID, q)
}

func (s *PG) ListIssues(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Issue, int64, error) {
	return listRows[model.Issue](ctx, s.pool, issueSelector, ownerID, q)
}

func (s *PG) ListReleases(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Release, int64, error) {
	return listRows[model.Release](ctx, s.pool, releaseSelector, ownerID, q)
}

func (s *PG) ListExternalUsers(ctx context.Context, ownerID string, q model.ListQuery) ([]model.ExternalUser, int64, error) {
	return listRows[model.ExternalUser](ctx, s.pool, userSelector, ownerID, q)
}

func (s *PG) RepoCommits(ctx context.Context, ownerID, fullName string) ([]model.Commit, error) {
	return repoRows[model.Commit](ctx, s.pool, commitSelector, "committed_at", ownerID, fullName)
}

func (s *PG) RepoPullRequests(ctx context.Context, ownerID, fullName string) ([]model.PullRequest, error) {
	return repoRows[model.PullRequest](ctx, s.pool, pullSelector, "created_at", ownerID, fullName)
}

func (s *PG) RepoIssues(ctx context.Context, ownerID, fullName string) ([]model.Issue, error) {
	return repoRows[model.Issue](ctx, s.pool, issueSelector, "created_at", ownerID, fullName)
}

func (s *PG) RepoReleases(ctx context.Context, ownerID, fullName string) ([]model.Release, error) {
	return repoRows[model.Release](ctx, s.pool, releaseSelector, "published_at", ownerID, fullName)
}

// Summary counts every entity collection for the owner in parallel.
func (s *PG) Summary(ctx context.Context, ownerID string) (model.Summary, error) {
	var summary model.Summary
	g, gctx := errgroup.WithContext(ctx)

	count := func(table string, dst *int64) func() error {
		return func() error {
			return s.pool.QueryRow(gctx,
				fmt.Sprintf("SELECT count(*) FROM %s WHERE owner_id = $1", table), ownerID).Scan(dst)
		}
	}

	g.Go(count("organizations", &summary.Organizations))
	g.Go(count("repositories", &summary.Repositories))
	g.Go(count("commits", &summary.Commits))
	g.Go(count("pull_requests", &summary.PullRequests))
	g.Go(count("issues", &summary.Issues))
	g.Go(count("releases", &summary.Releases))

	if err := g.Wait(); err != nil {
		return model.Summary{}, err
	}
	return summary, nil
}
