package api

import (
	"context"
	"time"

	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

// cascadePage walks owned entities in full; listings above this size are
// processed page by page.
func cascadePage(num int) db.Page {
	return db.NormalizePage(num, 200)
}

// forceStop takes a revision off the pool regardless of who asked. Verifying
// revisions fall back to Unverified, running ones to Stopped. Revisions in
// any other state are left alone.
func (s *Server) forceStop(ctx context.Context, revision *model.Revision) error {
	switch revision.Status {
	case model.RevisionVerifying:
		revision.Status = model.RevisionUnverified
	case model.RevisionRunning:
		revision.Status = model.RevisionStopped
		revision.LastStopDate = common.FormatTime(time.Now().UTC())
	default:
		return nil
	}
	if err := s.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}
	return s.sender.Send(ctx, s.cfg.Broker.SchedulerQueue, queue.TypeStopFuzzer, queue.StopFuzzerPayload{
		FuzzerID:   revision.FuzzerID,
		RevisionID: revision.ID,
	})
}

// stopFuzzerRevisions stops every active revision of one fuzzer.
func (s *Server) stopFuzzerRevisions(ctx context.Context, fuzzerID string) error {
	for page := 0; ; page++ {
		revisions, err := s.store.Revisions.ListByFuzzer(ctx, fuzzerID, model.RemovalAll, cascadePage(page))
		if err != nil {
			return err
		}
		if len(revisions) == 0 {
			return nil
		}
		for i := range revisions {
			if err := s.forceStop(ctx, &revisions[i]); err != nil {
				return err
			}
		}
	}
}

// stopProjectRevisions stops everything running under one project.
func (s *Server) stopProjectRevisions(ctx context.Context, projectID string) error {
	for page := 0; ; page++ {
		fuzzers, err := s.store.Fuzzers.ListByProject(ctx, projectID, model.RemovalAll, cascadePage(page))
		if err != nil {
			return err
		}
		if len(fuzzers) == 0 {
			return nil
		}
		for i := range fuzzers {
			if err := s.stopFuzzerRevisions(ctx, fuzzers[i].ID); err != nil {
				return err
			}
		}
	}
}

// stopUserRevisions stops everything running under any project of the user.
func (s *Server) stopUserRevisions(ctx context.Context, userID string) error {
	for page := 0; ; page++ {
		projects, err := s.store.Projects.ListByOwner(ctx, userID, model.RemovalAll, cascadePage(page))
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			return nil
		}
		for i := range projects {
			if err := s.stopProjectRevisions(ctx, projects[i].ID); err != nil {
				return err
			}
		}
	}
}

// cascadeEraseFuzzer schedules erasure for every revision of a fuzzer.
func (s *Server) cascadeEraseFuzzer(ctx context.Context, fuzzerID string, now time.Time, noBackup bool) error {
	for {
		revisions, err := s.store.Revisions.ListByFuzzer(ctx, fuzzerID, model.RemovalVisible, cascadePage(0))
		if err != nil {
			return err
		}
		if len(revisions) == 0 {
			return nil
		}
		for i := range revisions {
			revisions[i].MarkErasing(now, noBackup)
			if err := s.store.Revisions.Update(ctx, &revisions[i]); err != nil {
				return err
			}
		}
	}
}

// cascadeEraseProject schedules erasure for the project's integrations,
// fuzzers, and their revisions. The project document itself is the caller's
// responsibility.
func (s *Server) cascadeEraseProject(ctx context.Context, projectID string, now time.Time, noBackup bool) error {
	for {
		integrations, err := s.store.Integrations.ListByProject(ctx, projectID, model.RemovalVisible, cascadePage(0))
		if err != nil {
			return err
		}
		if len(integrations) == 0 {
			break
		}
		for i := range integrations {
			integrations[i].MarkErasing(now, noBackup)
			if err := s.store.Integrations.Update(ctx, &integrations[i]); err != nil {
				return err
			}
		}
	}
	for {
		fuzzers, err := s.store.Fuzzers.ListByProject(ctx, projectID, model.RemovalVisible, cascadePage(0))
		if err != nil {
			return err
		}
		if len(fuzzers) == 0 {
			return nil
		}
		for i := range fuzzers {
			fuzzers[i].MarkErasing(now, noBackup)
			if err := s.store.Fuzzers.Update(ctx, &fuzzers[i]); err != nil {
				return err
			}
			if err := s.cascadeEraseFuzzer(ctx, fuzzers[i].ID, now, noBackup); err != nil {
				return err
			}
		}
	}
}

// cascadeEraseUser schedules erasure of everything the user owns.
func (s *Server) cascadeEraseUser(ctx context.Context, userID string, now time.Time, noBackup bool) error {
	for {
		projects, err := s.store.Projects.ListByOwner(ctx, userID, model.RemovalVisible, cascadePage(0))
		if err != nil {
			return err
		}
		if len(projects) == 0 {
			return nil
		}
		for i := range projects {
			projects[i].MarkErasing(now, noBackup)
			if err := s.store.Projects.Update(ctx, &projects[i]); err != nil {
				return err
			}
			if err := s.cascadeEraseProject(ctx, projects[i].ID, now, noBackup); err != nil {
				return err
			}
		}
	}
}
