package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
	"github.com/fuzzbed/gateway/queue"
)

type revisionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageID     *string `json:"image_id"`
	CPUUsage    *int64  `json:"cpu_usage"`
	RAMUsage    *int64  `json:"ram_usage"`
	TmpfsSize   *int64  `json:"tmpfs_size"`
}

type resourcesRequest struct {
	CPUUsage  int64 `json:"cpu_usage"`
	RAMUsage  int64 `json:"ram_usage"`
	TmpfsSize int64 `json:"tmpfs_size"`
}

func (s *Server) listRevisions(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	revisions, err := s.store.Revisions.ListByFuzzer(c.Request().Context(), pathFuzzer(c).ID, state, pageParam(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revisions)
}

// createRevision registers a new snapshot of the fuzzer. Resources default
// to the platform floors; the first revision of a fuzzer becomes active
// automatically.
func (s *Server) createRevision(c echo.Context) error {
	var req revisionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed revision request")
	}
	if req.Name == nil || *req.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	if req.ImageID == nil || *req.ImageID == "" {
		return apierr.ErrValidationFailed.WithMessage("image_id is required")
	}
	ctx := c.Request().Context()
	fuzzer := pathFuzzer(c)

	if _, err := s.store.Catalog.GetImage(ctx, *req.ImageID); err != nil {
		return err
	}

	revision := &model.Revision{
		Name:      *req.Name,
		FuzzerID:  fuzzer.ID,
		ImageID:   *req.ImageID,
		Status:    model.RevisionUnverified,
		CPUUsage:  s.cfg.Resources.MinCPU,
		RAMUsage:  s.cfg.Resources.MinRAM,
		TmpfsSize: s.cfg.Resources.MinTmpfs,
		Created:   common.FormatTime(time.Now().UTC()),
	}
	if req.Description != nil {
		revision.Description = *req.Description
	}
	if req.CPUUsage != nil {
		revision.CPUUsage = *req.CPUUsage
	}
	if req.RAMUsage != nil {
		revision.RAMUsage = *req.RAMUsage
	}
	if req.TmpfsSize != nil {
		revision.TmpfsSize = *req.TmpfsSize
	}
	if revision.CPUUsage < s.cfg.Resources.MinCPU ||
		revision.RAMUsage < s.cfg.Resources.MinRAM ||
		revision.TmpfsSize < s.cfg.Resources.MinTmpfs {
		return apierr.ErrResourceLimits.WithParams(s.cfg.Resources.MinCPU, s.cfg.Resources.MinRAM, s.cfg.Resources.MinTmpfs)
	}
	revision.RecomputeHealth()

	if err := s.store.Revisions.Create(ctx, revision); err != nil {
		return err
	}
	if fuzzer.ActiveRevision == "" {
		fuzzer.ActiveRevision = revision.ID
		if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
			return err
		}
	}
	common.Logger.WithFields(map[string]interface{}{
		"fuzzer":   fuzzer.Name,
		"revision": revision.Name,
	}).Info("created revision")
	return c.JSON(http.StatusCreated, revision)
}

func (s *Server) getRevision(c echo.Context) error {
	return c.JSON(http.StatusOK, pathRevision(c))
}

func (s *Server) patchRevision(c echo.Context) error {
	var req revisionRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed revision request")
	}
	if req.ImageID != nil || req.CPUUsage != nil || req.RAMUsage != nil || req.TmpfsSize != nil {
		return apierr.ErrValidationFailed.WithMessage("only name and description can change here")
	}
	revision := pathRevision(c)
	if req.Name != nil {
		if *req.Name == "" {
			return apierr.ErrValidationFailed.WithMessage("name must not be empty")
		}
		revision.Name = *req.Name
	}
	if req.Description != nil {
		revision.Description = *req.Description
	}
	if err := s.store.Revisions.Update(c.Request().Context(), revision); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revision)
}

func (s *Server) deleteRevision(c echo.Context) error {
	action, err := removalActionParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	revision := pathRevision(c)
	now := time.Now().UTC()

	switch action {
	case model.ActionDelete:
		if revision.IsDeleted() {
			return apierr.ErrRevisionDeleted
		}
		if err := s.forceStop(ctx, revision); err != nil {
			return err
		}
		revision.MarkDeleted(now, s.cfg.Trashbin.Expiration, noBackupParam(c))
		if err := s.store.Revisions.Update(ctx, revision); err != nil {
			return err
		}

	case model.ActionRestore:
		if revision.RemovalStateAt(now) != model.RemovalTrashBin {
			return apierr.ErrRevisionNotFound
		}
		if newName := c.QueryParam("new_name"); newName != "" {
			revision.Name = newName
		}
		revision.Restore()
		if err := s.store.Revisions.Update(ctx, revision); err != nil {
			return err
		}

	case model.ActionErase:
		if err := s.forceStop(ctx, revision); err != nil {
			return err
		}
		revision.MarkErasing(now, noBackupParam(c))
		if err := s.store.Revisions.Update(ctx, revision); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, revision)
}

func (s *Server) getActiveRevision(c echo.Context) error {
	revision, err := s.activeRevisionOf(c.Request().Context(), pathFuzzer(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revision)
}

// setActiveRevision switches the fuzzer-level action target. The previous
// active revision is stopped; the fuzzer and the stopped revision move in
// one batch write.
func (s *Server) setActiveRevision(c echo.Context) error {
	var req struct {
		RevisionID string `json:"revision_id"`
	}
	if err := c.Bind(&req); err != nil || req.RevisionID == "" {
		return apierr.ErrValidationFailed.WithMessage("revision_id is required")
	}
	ctx := c.Request().Context()
	fuzzer := pathFuzzer(c)

	next, err := s.store.Revisions.GetByID(ctx, req.RevisionID)
	if err != nil {
		return err
	}
	if next.FuzzerID != fuzzer.ID {
		return apierr.ErrRevisionNotFound
	}
	if next.IsDeleted() {
		return apierr.ErrRevisionDeleted
	}
	if fuzzer.ActiveRevision == next.ID {
		return apierr.ErrRevisionAlreadyActive
	}

	var stopped *model.Revision
	if fuzzer.ActiveRevision != "" {
		prev, err := s.store.Revisions.GetByID(ctx, fuzzer.ActiveRevision)
		if err == nil {
			switch prev.Status {
			case model.RevisionVerifying:
				prev.Status = model.RevisionUnverified
				stopped = prev
			case model.RevisionRunning:
				prev.Status = model.RevisionStopped
				prev.LastStopDate = common.FormatTime(time.Now().UTC())
				stopped = prev
			}
		}
	}
	prevActive := fuzzer.ActiveRevision
	fuzzer.ActiveRevision = next.ID
	if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
		return err
	}
	if stopped != nil {
		if err := s.store.Revisions.Update(ctx, stopped); err != nil {
			// CouchDB cannot update both documents in one transaction. Undo
			// the pointer switch so a conflict on the revision write leaves
			// the previous assignment intact.
			fuzzer.ActiveRevision = prevActive
			if rbErr := s.store.Fuzzers.Update(ctx, fuzzer); rbErr != nil {
				common.Logger.WithError(rbErr).WithField("fuzzer", fuzzer.ID).
					Error("restoring active revision pointer")
			}
			return err
		}
		if err := s.sender.Send(ctx, s.cfg.Broker.SchedulerQueue, queue.TypeStopFuzzer, queue.StopFuzzerPayload{
			FuzzerID:   stopped.FuzzerID,
			RevisionID: stopped.ID,
		}); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, next)
}

// checkStartPreconditions validates everything a revision needs before it
// can be handed to the scheduler, and returns the pool it will run on.
func (s *Server) checkStartPreconditions(c echo.Context, fuzzer *model.Fuzzer, revision *model.Revision) error {
	ctx := c.Request().Context()
	project := pathProject(c)

	if project.PoolID == "" {
		return apierr.ErrNoPoolToUse
	}
	pool, err := s.pools.GetPool(ctx, project.PoolID)
	if err != nil {
		return err
	}
	if !revision.Binaries.Uploaded {
		return apierr.ErrBinariesNotUploaded
	}
	if err := s.checkResources(revision.CPUUsage, revision.RAMUsage, revision.TmpfsSize, pool); err != nil {
		return err
	}
	image, err := s.store.Catalog.GetImage(ctx, revision.ImageID)
	if err != nil {
		return err
	}
	if image.Status != model.ImageReady {
		return apierr.ErrImageNotReady
	}
	if !image.HasEngine(fuzzer.Engine) {
		return apierr.ErrEngineNotInImage.WithParams(fuzzer.Engine, image.Name)
	}
	engine, err := s.store.Catalog.GetEngine(ctx, fuzzer.Engine)
	if err != nil {
		return err
	}
	if !engine.HasLang(fuzzer.Lang) {
		return apierr.ErrLangNotInEngine.WithParams(fuzzer.Lang, fuzzer.Engine)
	}
	return nil
}

// checkResources validates requested resources against the platform floors
// and the pool's per-fuzzer ceilings. RAM and tmpfs share the node memory,
// so their sum is bounded by the RAM ceiling.
func (s *Server) checkResources(cpu, ram, tmpfs int64, pool *model.Pool) error {
	if cpu < s.cfg.Resources.MinCPU || cpu > pool.Resources.FuzzerMaxCPU {
		return apierr.ErrResourceLimits.WithParams("cpu", s.cfg.Resources.MinCPU, pool.Resources.FuzzerMaxCPU)
	}
	if ram < s.cfg.Resources.MinRAM || ram > pool.Resources.FuzzerMaxRAM {
		return apierr.ErrResourceLimits.WithParams("ram", s.cfg.Resources.MinRAM, pool.Resources.FuzzerMaxRAM)
	}
	if tmpfs < s.cfg.Resources.MinTmpfs || tmpfs > pool.Resources.FuzzerMaxTmpfs {
		return apierr.ErrResourceLimits.WithParams("tmpfs", s.cfg.Resources.MinTmpfs, pool.Resources.FuzzerMaxTmpfs)
	}
	if ram+tmpfs > pool.Resources.FuzzerMaxRAM {
		return apierr.ErrResourceLimits.WithParams("ram+tmpfs", s.cfg.Resources.MinRAM, pool.Resources.FuzzerMaxRAM)
	}
	return nil
}

// runStart implements both the start and restart actions. Start only moves
// forward: unverified revisions go through verification, verified ones run
// directly. Restart forces a fresh scheduling round regardless of state.
func (s *Server) runStart(c echo.Context, fuzzer *model.Fuzzer, revision *model.Revision, restart bool) error {
	ctx := c.Request().Context()
	if !restart {
		switch revision.Status {
		case model.RevisionRunning, model.RevisionVerifying:
			return apierr.ErrRevisionAlreadyRunning
		case model.RevisionStopped:
			if revision.Health == model.HealthError {
				return apierr.ErrRevisionCanOnlyRestart
			}
		}
	}
	if err := s.checkStartPreconditions(c, fuzzer, revision); err != nil {
		return err
	}

	if revision.IsVerified {
		revision.Status = model.RevisionRunning
	} else {
		revision.Status = model.RevisionVerifying
	}
	revision.Health = model.HealthOk
	revision.Feedback = ""
	revision.LastStartDate = common.FormatTime(time.Now().UTC())
	if err := s.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}

	err := s.sender.Send(ctx, s.cfg.Broker.SchedulerQueue, queue.TypeStartFuzzer, queue.StartFuzzerPayload{
		FuzzerID:   fuzzer.ID,
		RevisionID: revision.ID,
		PoolID:     pathProject(c).PoolID,
		Engine:     fuzzer.Engine,
		Lang:       fuzzer.Lang,
		Image:      revision.ImageID,
		CPUUsage:   revision.CPUUsage,
		RAMUsage:   revision.RAMUsage,
		TmpfsSize:  revision.TmpfsSize,
		ResetState: true,
		IsVerified: revision.IsVerified,
		Restart:    restart,
	})
	if err != nil {
		return err
	}
	common.Logger.WithFields(map[string]interface{}{
		"fuzzer":   fuzzer.Name,
		"revision": revision.Name,
		"restart":  restart,
	}).Info("scheduled revision start")
	return c.JSON(http.StatusOK, revision)
}

// runStop implements the stop action. Stopping verification returns the
// revision to Unverified; stopping a run records the stop time.
func (s *Server) runStop(c echo.Context, fuzzer *model.Fuzzer, revision *model.Revision) error {
	ctx := c.Request().Context()
	switch revision.Status {
	case model.RevisionVerifying:
		revision.Status = model.RevisionUnverified
	case model.RevisionRunning:
		revision.Status = model.RevisionStopped
		revision.LastStopDate = common.FormatTime(time.Now().UTC())
	default:
		return apierr.ErrWrongRevisionStatus
	}
	if err := s.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}
	if err := s.sender.Send(ctx, s.cfg.Broker.SchedulerQueue, queue.TypeStopFuzzer, queue.StopFuzzerPayload{
		FuzzerID:   fuzzer.ID,
		RevisionID: revision.ID,
	}); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, revision)
}

func (s *Server) startRevision(c echo.Context) error {
	return s.runStart(c, pathFuzzer(c), pathRevision(c), false)
}

func (s *Server) restartRevision(c echo.Context) error {
	return s.runStart(c, pathFuzzer(c), pathRevision(c), true)
}

func (s *Server) stopRevision(c echo.Context) error {
	return s.runStop(c, pathFuzzer(c), pathRevision(c))
}

// patchRevisionResources resizes a revision. A running revision is resized
// in place through the scheduler; ceilings are enforced against the
// project's pool when one is assigned.
func (s *Server) patchRevisionResources(c echo.Context) error {
	var req resourcesRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed resources request")
	}
	ctx := c.Request().Context()
	revision := pathRevision(c)
	project := pathProject(c)

	if project.PoolID != "" {
		pool, err := s.pools.GetPool(ctx, project.PoolID)
		if err != nil {
			return err
		}
		if err := s.checkResources(req.CPUUsage, req.RAMUsage, req.TmpfsSize, pool); err != nil {
			return err
		}
	} else if req.CPUUsage < s.cfg.Resources.MinCPU ||
		req.RAMUsage < s.cfg.Resources.MinRAM ||
		req.TmpfsSize < s.cfg.Resources.MinTmpfs {
		return apierr.ErrResourceLimits.WithParams(s.cfg.Resources.MinCPU, s.cfg.Resources.MinRAM, s.cfg.Resources.MinTmpfs)
	}

	revision.CPUUsage = req.CPUUsage
	revision.RAMUsage = req.RAMUsage
	revision.TmpfsSize = req.TmpfsSize
	if err := s.store.Revisions.Update(ctx, revision); err != nil {
		return err
	}
	if revision.Status == model.RevisionRunning {
		if err := s.sender.Send(ctx, s.cfg.Broker.SchedulerQueue, queue.TypeUpdateFuzzer, queue.UpdateFuzzerPayload{
			FuzzerID:   revision.FuzzerID,
			RevisionID: revision.ID,
			CPUUsage:   revision.CPUUsage,
			RAMUsage:   revision.RAMUsage,
			TmpfsSize:  revision.TmpfsSize,
		}); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, revision)
}
