// internal/store/store.go
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github-mirror/internal/model"
)

// Store is the persistence surface used by the syncer and the API handlers.
// Every operation is scoped by the owner id of the connected account.
type Store interface {
	UpsertIntegration(ctx context.Context, in model.Integration) error
	GetIntegration(ctx context.Context, ownerID string) (model.Integration, error)

	UpsertExternalUser(ctx context.Context, u model.ExternalUser) error

	ReplaceOrganizations(ctx context.Context, ownerID string, orgs []model.Organization) error
	ReplaceRepositories(ctx context.Context, ownerID string, repos []model.Repository) error

	DeleteCommits(ctx context.Context, ownerID string) error
	DeletePullRequests(ctx context.Context, ownerID string) error
	DeleteIssues(ctx context.Context, ownerID string) error
	DeleteReleases(ctx context.Context, ownerID string) error

	InsertCommits(ctx context.Context, commits []model.Commit) (int64, error)
	InsertPullRequests(ctx context.Context, pulls []model.PullRequest) (int64, error)
	InsertIssues(ctx context.Context, issues []model.Issue) (int64, error)
	InsertReleases(ctx context.Context, releases []model.Release) (int64, error)

	SetSyncStage(ctx context.Context, ownerID string, stage model.SyncStage, done bool) error
	GetSyncStatus(ctx context.Context, ownerID string) (model.SyncStatus, error)

	AcquireSyncLease(ctx context.Context, ownerID string, ttl time.Duration) (bool, error)
	ReleaseSyncLease(ctx context.Context, ownerID string) error

	ListOrganizations(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Organization, int64, error)
	ListRepositories(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Repository, int64, error)
	ListCommits(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Commit, int64, error)
	ListPullRequests(ctx context.Context, ownerID string, q model.ListQuery) ([]model.PullRequest, int64, error)
	ListIssues(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Issue, int64, error)
	ListReleases(ctx context.Context, ownerID string, q model.ListQuery) ([]model.Release, int64, error)
	ListExternalUsers(ctx context.Context, ownerID string, q model.ListQuery) ([]model.ExternalUser, int64, error)

	RepoCommits(ctx context.Context, ownerID, fullName string) ([]model.Commit, error)
	RepoPullRequests(ctx context.Context, ownerID, fullName string) ([]model.PullRequest, error)
	RepoIssues(ctx context.Context, ownerID, fullName string) ([]model.Issue, error)
	RepoReleases(ctx context.Context, ownerID, fullName string) ([]model.Release, error)

	Summary(ctx context.Context, ownerID string) (model.Summary, error)

	DeleteOwnerData(ctx context.Context, ownerID string) error
}

// PG is the Postgres-backed Store.
type PG struct {
	pool *pgxpool.Pool
}

var _ Store = (*PG)(nil)

// New creates a Store backed by the given connection pool.
func New(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

func (s *PG) UpsertIntegration(ctx context.Context, in model.Integration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO integrations (owner_id, username, avatar_url, access_token, scopes, last_synced_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url,
			access_token = EXCLUDED.access_token,
			scopes = EXCLUDED.scopes,
			last_synced_at = EXCLUDED.last_synced_at`,
		in.OwnerID, in.Username, in.AvatarURL, in.AccessToken, in.Scopes, in.LastSyncedAt)
	return err
}

func (s *PG) GetIntegration(ctx context.Context, ownerID string) (model.Integration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, username, avatar_url, access_token, scopes, last_synced_at
		FROM integrations WHERE owner_id = $1`, ownerID)
	if err != nil {
		return model.Integration{}, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Integration])
}

func (s *PG) UpsertExternalUser(ctx context.Context, u model.ExternalUser) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_users (owner_id, external_id, login, name, avatar_url, url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, external_id) DO UPDATE SET
			login = EXCLUDED.login,
			name = EXCLUDED.name,
			avatar_url = EXCLUDED.avatar_url,
			url = EXCLUDED.url`,
		u.OwnerID, u.ExternalID, u.Login, u.Name, u.AvatarURL, u.URL)
	return err
}

// ReplaceOrganizations swaps the owner's organization rows for the given set
// inside one transaction, so readers never see the emptied table.
func (s *PG) ReplaceOrganizations(ctx context.Context, ownerID string, orgs []model.Organization) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM organizations WHERE owner_id = $1`, ownerID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, o := range orgs {
			batch.Queue(`
				INSERT INTO organizations (owner_id, org_id, login, name, description, url, repos_count, member_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				ownerID, o.OrgID, o.Login, o.Name, o.Description, o.URL, o.ReposCount, o.MemberCount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ReplaceRepositories swaps the owner's repository rows, same shape as
// ReplaceOrganizations.
func (s *PG) ReplaceRepositories(ctx context.Context, ownerID string, repos []model.Repository) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM repositories WHERE owner_id = $1`, ownerID); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		for _, r := range repos {
			batch.Queue(`
				INSERT INTO repositories (owner_id, repo_id, name, full_name, private, url, description, language, forks_count, stars_count, open_issues_count)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				ownerID, r.RepoID, r.Name, r.FullName, r.Private, r.URL, r.Description, r.Language, r.ForksCount, r.StarsCount, r.OpenIssuesCount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

func (s *PG) DeleteCommits(ctx context.Context, ownerID string) error {
	return s.deleteForOwner(ctx, "commits", ownerID)
}

func (s *PG) DeletePullRequests(ctx context.Context, ownerID string) error {
	return s.deleteForOwner(ctx, "pull_requests", ownerID)
}

func (s *PG) DeleteIssues(ctx context.Context, ownerID string) error {
	return s.deleteForOwner(ctx, "issues", ownerID)
}

func (s *PG) DeleteReleases(ctx context.Context, ownerID string) error {
	return s.deleteForOwner(ctx, "releases", ownerID)
}

func (s *PG) deleteForOwner(ctx context.Context, table, ownerID string) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, table), ownerID)
	return err
}

func (s *PG) InsertCommits(ctx context.Context, commits []model.Commit) (int64, error) {
	return s.pool.CopyFrom(ctx,
		pgx.Identifier{"commits"},
		[]string{"owner_id", "repo_full_name", "sha", "message", "author_name", "author_login", "committed_at", "url"},
		pgx.CopyFromSlice(len(commits), func(i int) ([]any, error) {
			c := commits[i]
			return []any{c.OwnerID, c.RepoFullName, c.SHA, c.Message, c.AuthorName, c.AuthorLogin, c.CommittedAt, c.URL}, nil
		}))
}

func (s *PG) InsertPullRequests(ctx context.Context, pulls []model.PullRequest) (int64, error) {
	return s.pool.CopyFrom(ctx,
		pgx.Identifier{"pull_requests"},
		[]string{"owner_id", "repo_full_name", "number", "title", "state", "author_login", "created_at", "merged_at", "url"},
		pgx.CopyFromSlice(len(pulls), func(i int) ([]any, error) {
			p := pulls[i]
			return []any{p.OwnerID, p.RepoFullName, p.Number, p.Title, p.State, p.AuthorLogin, p.CreatedAt, p.MergedAt, p.URL}, nil
		}))
}

func (s *PG) InsertIssues(ctx context.Context, issues []model.Issue) (int64, error) {
	return s.pool.CopyFrom(ctx,
		pgx.Identifier{"issues"},
		[]string{"owner_id", "repo_full_name", "number", "title", "state", "author_login", "created_at", "closed_at", "url"},
		pgx.CopyFromSlice(len(issues), func(i int) ([]any, error) {
			is := issues[i]
			return []any{is.OwnerID, is.RepoFullName, is.Number, is.Title, is.State, is.AuthorLogin, is.CreatedAt, is.ClosedAt, is.URL}, nil
		}))
}

func (s *PG) InsertReleases(ctx context.Context, releases []model.Release) (int64, error) {
	return s.pool.CopyFrom(ctx,
		pgx.Identifier{"releases"},
		[]string{"owner_id", "repo_full_name", "release_id", "tag_name", "name", "body", "created_at", "published_at", "url"},
		pgx.CopyFromSlice(len(releases), func(i int) ([]any, error) {
			r := releases[i]
			return []any{r.OwnerID, r.RepoFullName, r.ReleaseID, r.TagName, r.Name, r.Body, r.CreatedAt, r.PublishedAt, r.URL}, nil
		}))
}

// stageColumns whitelists sync_status columns a stage flag may address; the
// stage value is interpolated into SQL, so it must never come from user input
// without passing this check.
var stageColumns = map[model.SyncStage]struct{}{
	model.StageUsers:         {},
	model.StageOrganizations: {},
	model.StageRepos:         {},
	model.StageCommits:       {},
	model.StagePulls:         {},
	model.StageIssues:        {},
	model.StageChangelogs:    {},
	model.StageAllSynced:     {},
}

func (s *PG) SetSyncStage(ctx context.Context, ownerID string, stage model.SyncStage, done bool) error {
	if _, ok := stageColumns[stage]; !ok {
		return fmt.Errorf("unknown sync stage: %q", stage)
	}
	query := fmt.Sprintf(`
		INSERT INTO sync_status (owner_id, %[1]s, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (owner_id) DO UPDATE SET %[1]s = $2, updated_at = now()`, string(stage))
	_, err := s.pool.Exec(ctx, query, ownerID, done)
	return err
}

func (s *PG) GetSyncStatus(ctx context.Context, ownerID string) (model.SyncStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT owner_id, users, organizations, repos, commits, pulls, issues, changelogs, all_synced, updated_at
		FROM sync_status WHERE owner_id = $1`, ownerID)
	if err != nil {
		return model.SyncStatus{}, err
	}
	return pgx.CollectOneRow(rows, pgx.RowToStructByName[model.SyncStatus])
}

// AcquireSyncLease takes the per-owner run lease. It returns false when
// another run holds an unexpired lease. The expiry guards against a crashed
// run holding the lease forever.
func (s *PG) AcquireSyncLease(ctx context.Context, ownerID string, ttl time.Duration) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO sync_leases (owner_id, acquired_at, expires_at)
		VALUES ($1, now(), now() + $2 * interval '1 second')
		ON CONFLICT (owner_id) DO UPDATE SET
			acquired_at = now(),
			expires_at = now() + $2 * interval '1 second'
		WHERE sync_leases.expires_at < now()`,
		ownerID, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PG) ReleaseSyncLease(ctx context.Context, ownerID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sync_leases WHERE owner_id = $1`, ownerID)
	return err
}

// DeleteOwnerData removes every row scoped to the owner: the disconnect
// cascade. Runs in one transaction.
func (s *PG) DeleteOwnerData(ctx context.Context, ownerID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{
			"organizations", "repositories", "commits", "pull_requests",
			"issues", "releases", "external_users", "sync_status",
			"sync_leases", "integrations",
		} {
			if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE owner_id = $1`, table), ownerID); err != nil {
				return fmt.Errorf("delete from %s: %w", table, err)
			}
		}
		return nil
	})
}
