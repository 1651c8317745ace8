// internal/model/models.go
package model

import "time"

// Integration holds the OAuth credential and profile of a connected GitHub
// account. One row per owner; updated on every re-authorization.
type Integration struct {
	OwnerID      string    `db:"owner_id" json:"githubId"`
	Username     string    `db:"username" json:"username"`
	AvatarURL    string    `db:"avatar_url" json:"avatarUrl"`
	AccessToken  string    `db:"access_token" json:"-"`
	Scopes       string    `db:"scopes" json:"scopes"`
	LastSyncedAt time.Time `db:"last_synced_at" json:"lastSynced"`
}

// Organization is replaced wholesale on every sync.
type Organization struct {
	OwnerID     string `db:"owner_id" json:"-"`
	OrgID       int64  `db:"org_id" json:"orgId"`
	Login       string `db:"login" json:"login"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	URL         string `db:"url" json:"url"`
	ReposCount  int    `db:"repos_count" json:"reposCount"`
	MemberCount int    `db:"member_count" json:"membersCount"`
}

// ExternalUser is a GitHub user seen during a sync: org members plus the
// connected account's own profile. Upserted, never bulk-replaced.
type ExternalUser struct {
	OwnerID    string `db:"owner_id" json:"-"`
	ExternalID int64  `db:"external_id" json:"githubId"`
	Login      string `db:"login" json:"login"`
	Name       string `db:"name" json:"name"`
	AvatarURL  string `db:"avatar_url" json:"avatarUrl"`
	URL        string `db:"url" json:"url"`
}

// Repository is replaced wholesale on every sync. FullName joins all
// sub-resources below to their repository.
type Repository struct {
	OwnerID         string  `db:"owner_id" json:"-"`
	RepoID          int64   `db:"repo_id" json:"repoId"`
	Name            string  `db:"name" json:"name"`
	FullName        string  `db:"full_name" json:"fullName"`
	Private         bool    `db:"private" json:"private"`
	URL             string  `db:"url" json:"htmlUrl"`
	Description     string  `db:"description" json:"description"`
	Language        *string `db:"language" json:"language"`
	ForksCount      int     `db:"forks_count" json:"forksCount"`
	StarsCount      int     `db:"stars_count" json:"starsCount"`
	OpenIssuesCount int     `db:"open_issues_count" json:"openIssuesCount"`
}

type Commit struct {
	OwnerID      string     `db:"owner_id" json:"-"`
	RepoFullName string     `db:"repo_full_name" json:"repoFullName"`
	SHA          string     `db:"sha" json:"sha"`
	Message      string     `db:"message" json:"message"`
	AuthorName   string     `db:"author_name" json:"authorName"`
	AuthorLogin  string     `db:"author_login" json:"authorLogin"`
	CommittedAt  *time.Time `db:"committed_at" json:"date"`
	URL          string     `db:"url" json:"url"`
}

// PullRequest state is "open" or "closed"; merged is inferred from MergedAt.
type PullRequest struct {
	OwnerID      string     `db:"owner_id" json:"-"`
	RepoFullName string     `db:"repo_full_name" json:"repoFullName"`
	Number       int        `db:"number" json:"number"`
	Title        string     `db:"title" json:"title"`
	State        string     `db:"state" json:"state"`
	AuthorLogin  string     `db:"author_login" json:"authorLogin"`
	CreatedAt    *time.Time `db:"created_at" json:"createdAt"`
	MergedAt     *time.Time `db:"merged_at" json:"mergedAt"`
	URL          string     `db:"url" json:"url"`
}

type Issue struct {
	OwnerID      string     `db:"owner_id" json:"-"`
	RepoFullName string     `db:"repo_full_name" json:"repoFullName"`
	Number       int        `db:"number" json:"number"`
	Title        string     `db:"title" json:"title"`
	State        string     `db:"state" json:"state"`
	AuthorLogin  string     `db:"author_login" json:"authorLogin"`
	CreatedAt    *time.Time `db:"created_at" json:"createdAt"`
	ClosedAt     *time.Time `db:"closed_at" json:"closedAt"`
	URL          string     `db:"url" json:"url"`
}

type Release struct {
	OwnerID      string     `db:"owner_id" json:"-"`
	RepoFullName string     `db:"repo_full_name" json:"repoFullName"`
	ReleaseID    int64      `db:"release_id" json:"releaseId"`
	TagName      string     `db:"tag_name" json:"tagName"`
	Name         string     `db:"name" json:"name"`
	Body         string     `db:"body" json:"body"`
	CreatedAt    *time.Time `db:"created_at" json:"createdAt"`
	PublishedAt  *time.Time `db:"published_at" json:"publishedAt"`
	URL          string     `db:"url" json:"url"`
}

// SyncStage identifies one step of a synchronization run. The values double
// as sync_status column names, so they must stay in sync with the schema.
type SyncStage string

const (
	StageUsers         SyncStage = "users"
	StageOrganizations SyncStage = "organizations"
	StageRepos         SyncStage = "repos"
	StageCommits       SyncStage = "commits"
	StagePulls         SyncStage = "pulls"
	StageIssues        SyncStage = "issues"
	StageChangelogs    SyncStage = "changelogs"
	StageAllSynced     SyncStage = "all_synced"
)

// SyncStatus is the monotonic progress record for an owner's sync run. Flags
// only move forward within a run; a new run starts from whatever the previous
// run left behind.
type SyncStatus struct {
	OwnerID       string    `db:"owner_id" json:"userId"`
	Users         bool      `db:"users" json:"users"`
	Organizations bool      `db:"organizations" json:"organizations"`
	Repos         bool      `db:"repos" json:"repos"`
	Commits       bool      `db:"commits" json:"commits"`
	Pulls         bool      `db:"pulls" json:"pulls"`
	Issues        bool      `db:"issues" json:"issues"`
	Changelogs    bool      `db:"changelogs" json:"changelogs"`
	AllSynced     bool      `db:"all_synced" json:"allSynced"`
	UpdatedAt     time.Time `db:"updated_at" json:"lastUpdated"`
}

// Summary holds per-entity row counts for one owner.
type Summary struct {
	Organizations int64 `json:"organizations"`
	Repositories  int64 `json:"repositories"`
	Commits       int64 `json:"commits"`
	PullRequests  int64 `json:"pullRequests"`
	Issues        int64 `json:"issues"`
	Releases      int64 `json:"releases"`
}

// ListQuery is the common search/pagination input for entity listings.
// Search is a case-insensitive substring match across the entity's string
// fields.
type ListQuery struct {
	Search string
	Page   int
	Limit  int
}

// Normalize applies the default page and limit.
func (q ListQuery) Normalize() ListQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = 50
	}
	return q
}

// Offset returns the row offset implied by page and limit.
func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}
