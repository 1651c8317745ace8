// internal/syncer/forks.go
package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github-mirror/internal/model"
)

// Import caps for the fork-resolution pipeline.
const (
	forkCommitCap = 2000
	forkPullCap   = 1000
	forkIssueCap  = 500
)

// ImportForks imports activity attributed to the upstream parents of every
// fork the owner has. Forks resolving to the same parent are imported once.
// Unlike Run, the import is best-effort: a failure for one entity type on one
// repository flips that entity type's run-wide flag false and processing
// continues. allSynced is set only when the whole run saw zero errors.
func (s *Syncer) ImportForks(ctx context.Context, token, ownerID string) error {
	release, err := s.acquireLease(ctx, ownerID)
	if err != nil {
		return err
	}
	defer release()

	logger := s.logger.With("owner", ownerID)
	logger.Info("Starting fork bulk import")

	client := s.newClient(token)

	forks, err := client.ForkedRepositories(ctx)
	if err != nil {
		return fmt.Errorf("list forked repositories: %w", err)
	}

	repos := s.resolveForks(ctx, client, forks, logger)
	logger.Info("Resolved forks", "forks", len(forks), "distinct", len(repos))

	stages := []stage{
		{model.StageCommits, func(ctx context.Context) error {
			return visitAllRepos(logger, model.StageCommits, repos, func(fullName string) error {
				commits, err := client.Commits(ctx, fullName, forkCommitCap)
				if err != nil {
					return err
				}
				n, err := s.store.InsertCommits(ctx, stampCommits(ownerID, commits))
				if err != nil {
					return err
				}
				logger.Info("Imported commits", "repo", fullName, "count", n)
				return nil
			})
		}},
		{model.StagePulls, func(ctx context.Context) error {
			return visitAllRepos(logger, model.StagePulls, repos, func(fullName string) error {
				pulls, err := client.PullRequests(ctx, fullName, forkPullCap)
				if err != nil {
					return err
				}
				_, err = s.store.InsertPullRequests(ctx, stampPulls(ownerID, pulls))
				return err
			})
		}},
		{model.StageIssues, func(ctx context.Context) error {
			return visitAllRepos(logger, model.StageIssues, repos, func(fullName string) error {
				issues, err := client.Issues(ctx, fullName, forkIssueCap)
				if err != nil {
					return err
				}
				_, err = s.store.InsertIssues(ctx, stampIssues(ownerID, issues))
				return err
			})
		}},
	}

	failed, err := s.runStages(ctx, ownerID, BestEffort, stages)
	if err != nil {
		return err
	}
	if failed {
		logger.Warn("Fork bulk import finished with errors; allSynced not set")
		return nil
	}
	if err := s.store.SetSyncStage(ctx, ownerID, model.StageAllSynced, true); err != nil {
		return err
	}
	logger.Info("Fork bulk import complete")
	return nil
}

// resolveForks maps each fork to its parent's full name, falling back to the
// fork itself when it has no parent or the detail fetch fails, and drops
// duplicates while preserving first-seen order.
func (s *Syncer) resolveForks(ctx context.Context, client Upstream, forks []string, logger *slog.Logger) []string {
	seen := make(map[string]struct{}, len(forks))
	var resolved []string
	for _, fork := range forks {
		name, err := client.ResolveParent(ctx, fork)
		if err != nil {
			logger.Warn("Failed to resolve fork parent, using fork itself", "repo", fork, "error", err)
			name = fork
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		resolved = append(resolved, name)
	}
	return resolved
}
