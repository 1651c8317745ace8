// internal/syncer/syncer.go
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	custom_errors "github-mirror/internal/errors"
	"github-mirror/internal/model"
	"github-mirror/internal/store"
)

const (
	// A crashed run's lease becomes reclaimable after this long.
	leaseTTL = time.Hour
)

// Upstream is the slice of the GitHub client the syncer depends on.
type Upstream interface {
	AuthenticatedUser(ctx context.Context) (model.ExternalUser, error)
	Organizations(ctx context.Context) ([]model.Organization, error)
	OrgMembers(ctx context.Context, org string, pageLimit int) ([]model.ExternalUser, error)
	Repositories(ctx context.Context) ([]model.Repository, error)
	ForkedRepositories(ctx context.Context) ([]string, error)
	ResolveParent(ctx context.Context, fullName string) (string, error)
	Commits(ctx context.Context, fullName string, maxItems int) ([]model.Commit, error)
	PullRequests(ctx context.Context, fullName string, maxItems int) ([]model.PullRequest, error)
	Issues(ctx context.Context, fullName string, maxItems int) ([]model.Issue, error)
	Releases(ctx context.Context, fullName string) ([]model.Release, error)
}

// ClientFactory builds an Upstream authenticated with the given token.
type ClientFactory func(token string) Upstream

// Policy selects how a run treats a failing stage.
type Policy int

const (
	// FailFast aborts the run on the first stage failure; completed stage
	// flags stay set, the failed stage's flag is left untouched.
	FailFast Policy = iota
	// BestEffort records the failure, sets the stage flag false, and keeps
	// going.
	BestEffort
)

// stage is one resource-type synchronization step. Its SyncStatus flag is set
// when run returns.
type stage struct {
	name model.SyncStage
	run  func(ctx context.Context) error
}

// Syncer drives full-account resynchronization and the fork-resolution bulk
// import for connected owners.
type Syncer struct {
	store           store.Store
	newClient       ClientFactory
	logger          *slog.Logger
	memberPageLimit int
}

// New creates a Syncer. memberPageLimit caps org-member pagination per
// organization (0 = unlimited).
func New(st store.Store, newClient ClientFactory, logger *slog.Logger, memberPageLimit int) *Syncer {
	return &Syncer{
		store:           st,
		newClient:       newClient,
		logger:          logger,
		memberPageLimit: memberPageLimit,
	}
}

// Run performs a full resynchronization of every entity collection for the
// owner: users, organizations (plus org members), repositories, then
// commits, pulls, issues and releases per repository, in that order. Each
// completed stage flips its SyncStatus flag; allSynced is set only when every
// stage completed. The run is serialized per owner through a stored lease.
func (s *Syncer) Run(ctx context.Context, token, ownerID string) error {
	release, err := s.acquireLease(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	logger := s.logger.With("owner", ownerID)
	logger.Info("Starting full sync")

	client := s.newClient(token)

	// Repositories from the repos stage feed the four sub-resource stages.
	var repos []model.Repository

	stages := []stage{
		{model.StageUsers, func(ctx context.Context) error {
			return s.syncOwnProfile(ctx, client, ownerID)
		}},
		{model.StageOrganizations, func(ctx context.Context) error {
			return s.syncOrganizations(ctx, client, ownerID, logger)
		}},
		{model.StageRepos, func(ctx context.Context) error {
			var err error
			repos, err = s.syncRepositories(ctx, client, ownerID)
			return err
		}},
		{model.StageCommits, func(ctx context.Context) error {
			if err := s.store.DeleteCommits(ctx, ownerID); err != nil {
				return err
			}
			return forEachRepo(repos, func(fullName string) error {
				commits, err := client.Commits(ctx, fullName, 0)
				if err != nil {
					return err
				}
				n, err := s.store.InsertCommits(ctx, stampCommits(ownerID, commits))
				if err != nil {
					return err
				}
				logger.Info("Stored commits", "repo", fullName, "count", n)
				return nil
			})
		}},
		{model.StagePulls, func(ctx context.Context) error {
			if err := s.store.DeletePullRequests(ctx, ownerID); err != nil {
				return err
			}
			return forEachRepo(repos, func(fullName string) error {
				pulls, err := client.PullRequests(ctx, fullName, 0)
				if err != nil {
					return err
				}
				_, err = s.store.InsertPullRequests(ctx, stampPulls(ownerID, pulls))
				return err
			})
		}},
		{model.StageIssues, func(ctx context.Context) error {
			if err := s.store.DeleteIssues(ctx, ownerID); err != nil {
				return err
			}
			return forEachRepo(repos, func(fullName string) error {
				issues, err := client.Issues(ctx, fullName, 0)
				if err != nil {
					return err
				}
				_, err = s.store.InsertIssues(ctx, stampIssues(ownerID, issues))
				return err
			})
		}},
		{model.StageChangelogs, func(ctx context.Context) error {
			if err := s.store.DeleteReleases(ctx, ownerID); err != nil {
				return err
			}
			return forEachRepo(repos, func(fullName string) error {
				releases, err := client.Releases(ctx, fullName)
				if err != nil {
					return err
				}
				_, err = s.store.InsertReleases(ctx, stampReleases(ownerID, releases))
				return err
			})
		}},
	}

	failed, err := s.runStages(ctx, ownerID, FailFast, stages)
	if err != nil {
		return err
	}
	if !failed {
		if err := s.store.SetSyncStage(ctx, ownerID, model.StageAllSynced, true); err != nil {
			return err
		}
		logger.Info("Full sync complete")
	}
	return nil
}

// runStages executes the stages in order under the given policy and reports
// whether any stage failed. Under FailFast the first failure is returned and
// no flag is written for it; under BestEffort failures flip the stage flag to
// false and execution continues.
func (s *Syncer) runStages(ctx context.Context, ownerID string, policy Policy, stages []stage) (failed bool, err error) {
	for _, st := range stages {
		runErr := st.run(ctx)
		if runErr != nil {
			failed = true
			s.logger.Error("Sync stage failed", "owner", ownerID, "stage", st.name, "error", runErr)
			if policy == FailFast {
				return true, fmt.Errorf("stage %s: %w", st.name, runErr)
			}
		}
		if setErr := s.store.SetSyncStage(ctx, ownerID, st.name, runErr == nil); setErr != nil {
			return true, fmt.Errorf("update sync status for stage %s: %w", st.name, setErr)
		}
	}
	return failed, nil
}

func (s *Syncer) acquireLease(ctx context.Context, ownerID string) (func(), error) {
	acquired, err := s.store.AcquireSyncLease(ctx, ownerID, leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire sync lease: %w", err)
	}
	if !acquired {
		s.logger.Warn("Sync already running for owner, skipping", "owner", ownerID)
		return nil, custom_errors.ErrSyncInProgress
	}
	release := func() {
		if err := s.store.ReleaseSyncLease(context.WithoutCancel(ctx), ownerID); err != nil {
			s.logger.Error("Failed to release sync lease", "owner", ownerID, "error", err)
		}
	}
	return release, nil
}

func (s *Syncer) syncOwnProfile(ctx context.Context, client Upstream, ownerID string) error {
	user, err := client.AuthenticatedUser(ctx)
	if err != nil {
		return err
	}
	user.OwnerID = ownerID
	return s.store.UpsertExternalUser(ctx, user)
}

// syncOrganizations replaces the owner's organization rows and upserts each
// org's members. Member fetch failures are logged and swallowed; they never
// fail the stage.
func (s *Syncer) syncOrganizations(ctx context.Context, client Upstream, ownerID string, logger *slog.Logger) error {
	orgs, err := client.Organizations(ctx)
	if err != nil {
		return err
	}
	for i := range orgs {
		orgs[i].OwnerID = ownerID
	}
	if err := s.store.ReplaceOrganizations(ctx, ownerID, orgs); err != nil {
		return err
	}
	for _, org := range orgs {
		members, err := client.OrgMembers(ctx, org.Login, s.memberPageLimit)
		if err != nil {
			logger.Error("Failed to fetch org members", "org", org.Login, "error", err)
			continue
		}
		for _, m := range members {
			m.OwnerID = ownerID
			if err := s.store.UpsertExternalUser(ctx, m); err != nil {
				logger.Error("Failed to store org member", "org", org.Login, "login", m.Login, "error", err)
			}
		}
	}
	return nil
}

func (s *Syncer) syncRepositories(ctx context.Context, client Upstream, ownerID string) ([]model.Repository, error) {
	repos, err := client.Repositories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range repos {
		repos[i].OwnerID = ownerID
	}
	if err := s.store.ReplaceRepositories(ctx, ownerID, repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// forEachRepo visits repositories strictly sequentially; the first error
// aborts the walk.
func forEachRepo(repos []model.Repository, visit func(fullName string) error) error {
	for _, repo := range repos {
		if err := visit(repo.FullName); err != nil {
			return fmt.Errorf("repo %s: %w", repo.FullName, err)
		}
	}
	return nil
}

// visitAllRepos visits every repository regardless of failures and returns
// the joined errors, if any. Used by best-effort stages.
func visitAllRepos(logger *slog.Logger, stageName model.SyncStage, repos []string, visit func(fullName string) error) error {
	var errs []error
	for _, fullName := range repos {
		if err := visit(fullName); err != nil {
			logger.Error("Import failed for repository", "stage", stageName, "repo", fullName, "error", err)
			errs = append(errs, fmt.Errorf("repo %s: %w", fullName, err))
		}
	}
	return errors.Join(errs...)
}

func stampCommits(ownerID string, commits []model.Commit) []model.Commit {
	for i := range commits {
		commits[i].OwnerID = ownerID
	}
	return commits
}

func stampPulls(ownerID string, pulls []model.PullRequest) []model.PullRequest {
	for i := range pulls {
		pulls[i].OwnerID = ownerID
	}
	return pulls
}

func stampIssues(ownerID string, issues []model.Issue) []model.Issue {
	for i := range issues {
		issues[i].OwnerID = ownerID
	}
	return issues
}

func stampReleases(ownerID string, releases []model.Release) []model.Release {
	for i := range releases {
		releases[i].OwnerID = ownerID
	}
	return releases
}
