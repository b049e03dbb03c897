package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
)

type fuzzerRequest struct {
	Name          *string `json:"name"`
	Description   *string `json:"description"`
	Engine        *string `json:"engine"`
	Lang          *string `json:"lang"`
	CIIntegration *bool   `json:"ci_integration"`
}

// hydrateFuzzer joins the active revision document into the response. A
// dangling reference hydrates as absent rather than failing the read.
func (s *Server) hydrateFuzzer(ctx context.Context, fuzzer *model.Fuzzer) *model.FuzzerResponse {
	resp := &model.FuzzerResponse{Fuzzer: *fuzzer}
	if fuzzer.ActiveRevision != "" {
		if revision, err := s.store.Revisions.GetByID(ctx, fuzzer.ActiveRevision); err == nil {
			resp.ActiveRevisionDoc = revision
		}
	}
	return resp
}

func (s *Server) listFuzzers(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	fuzzers, err := s.store.Fuzzers.ListByProject(ctx, pathProject(c).ID, state, pageParam(c))
	if err != nil {
		return err
	}
	out := make([]*model.FuzzerResponse, 0, len(fuzzers))
	for i := range fuzzers {
		out = append(out, s.hydrateFuzzer(ctx, &fuzzers[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// createFuzzer validates the engine and language pair against the catalog;
// both are fixed for the fuzzer's lifetime.
func (s *Server) createFuzzer(c echo.Context) error {
	var req fuzzerRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed fuzzer request")
	}
	if req.Name == nil || *req.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	if req.Engine == nil || req.Lang == nil {
		return apierr.ErrValidationFailed.WithMessage("engine and lang are required")
	}
	ctx := c.Request().Context()

	engine, err := s.store.Catalog.GetEngine(ctx, *req.Engine)
	if err != nil {
		return err
	}
	if _, err := s.store.Catalog.GetLang(ctx, *req.Lang); err != nil {
		return err
	}
	if !engine.HasLang(*req.Lang) {
		return apierr.ErrLangNotInEngine
	}

	fuzzer := &model.Fuzzer{
		Name:      *req.Name,
		ProjectID: pathProject(c).ID,
		Engine:    *req.Engine,
		Lang:      *req.Lang,
		Created:   common.FormatTime(time.Now().UTC()),
	}
	if req.Description != nil {
		fuzzer.Description = *req.Description
	}
	if req.CIIntegration != nil {
		fuzzer.CIIntegration = *req.CIIntegration
	}
	if err := s.store.Fuzzers.Create(ctx, fuzzer); err != nil {
		return err
	}
	common.Logger.WithField("fuzzer", fuzzer.Name).Info("created fuzzer")
	return c.JSON(http.StatusCreated, s.hydrateFuzzer(ctx, fuzzer))
}

func (s *Server) getFuzzer(c echo.Context) error {
	return c.JSON(http.StatusOK, s.hydrateFuzzer(c.Request().Context(), pathFuzzer(c)))
}

func (s *Server) patchFuzzer(c echo.Context) error {
	var req fuzzerRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed fuzzer request")
	}
	if req.Engine != nil || req.Lang != nil {
		return apierr.ErrValidationFailed.WithMessage("engine and lang cannot change after creation")
	}
	fuzzer := pathFuzzer(c)
	if req.Name != nil {
		if *req.Name == "" {
			return apierr.ErrValidationFailed.WithMessage("name must not be empty")
		}
		fuzzer.Name = *req.Name
	}
	if req.Description != nil {
		fuzzer.Description = *req.Description
	}
	if req.CIIntegration != nil {
		fuzzer.CIIntegration = *req.CIIntegration
	}
	ctx := c.Request().Context()
	if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.hydrateFuzzer(ctx, fuzzer))
}

func (s *Server) deleteFuzzer(c echo.Context) error {
	action, err := removalActionParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	fuzzer := pathFuzzer(c)
	now := time.Now().UTC()

	switch action {
	case model.ActionDelete:
		if fuzzer.IsDeleted() {
			return apierr.ErrFuzzerDeleted
		}
		fuzzer.MarkDeleted(now, s.cfg.Trashbin.Expiration, noBackupParam(c))
		if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
			return err
		}
		if err := s.stopFuzzerRevisions(ctx, fuzzer.ID); err != nil {
			return err
		}

	case model.ActionRestore:
		if fuzzer.RemovalStateAt(now) != model.RemovalTrashBin {
			return apierr.ErrFuzzerNotFound
		}
		if newName := c.QueryParam("new_name"); newName != "" {
			fuzzer.Name = newName
		}
		fuzzer.Restore()
		if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
			return err
		}

	case model.ActionErase:
		fuzzer.MarkErasing(now, noBackupParam(c))
		if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
			return err
		}
		if err := s.stopFuzzerRevisions(ctx, fuzzer.ID); err != nil {
			return err
		}
		if err := s.cascadeEraseFuzzer(ctx, fuzzer.ID, now, fuzzer.NoBackup); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, s.hydrateFuzzer(ctx, fuzzer))
}

func (s *Server) listFuzzerTrashbin(c echo.Context) error {
	ctx := c.Request().Context()
	fuzzers, err := s.store.Fuzzers.ListByProject(ctx, pathProject(c).ID, model.RemovalTrashBin, pageParam(c))
	if err != nil {
		return err
	}
	out := make([]*model.FuzzerResponse, 0, len(fuzzers))
	for i := range fuzzers {
		out = append(out, s.hydrateFuzzer(ctx, &fuzzers[i]))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) countFuzzerTrashbin(c echo.Context) error {
	count, err := s.store.Fuzzers.CountByProject(c.Request().Context(), pathProject(c).ID, model.RemovalTrashBin)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

// eraseTrashbinFuzzer schedules immediate erasure of a trash-binned fuzzer
// without waiting for the retention period.
func (s *Server) eraseTrashbinFuzzer(c echo.Context) error {
	ctx := c.Request().Context()
	fuzzer, err := s.store.Fuzzers.GetByID(ctx, c.Param("fuzzer_id"))
	if err != nil {
		return err
	}
	if fuzzer.ProjectID != pathProject(c).ID {
		return apierr.ErrFuzzerNotFound
	}
	now := time.Now().UTC()
	if fuzzer.RemovalStateAt(now) != model.RemovalTrashBin {
		return apierr.ErrFuzzerNotFound
	}
	fuzzer.MarkErasing(now, fuzzer.NoBackup)
	if err := s.store.Fuzzers.Update(ctx, fuzzer); err != nil {
		return err
	}
	if err := s.cascadeEraseFuzzer(ctx, fuzzer.ID, now, fuzzer.NoBackup); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// activeRevisionOf resolves the revision the fuzzer-level actions target.
func (s *Server) activeRevisionOf(ctx context.Context, fuzzer *model.Fuzzer) (*model.Revision, error) {
	if fuzzer.ActiveRevision == "" {
		return nil, apierr.ErrRevisionNotFound.WithMessage("fuzzer has no active revision")
	}
	return s.store.Revisions.GetByID(ctx, fuzzer.ActiveRevision)
}

func (s *Server) startActiveRevision(c echo.Context) error {
	fuzzer := pathFuzzer(c)
	revision, err := s.activeRevisionOf(c.Request().Context(), fuzzer)
	if err != nil {
		return err
	}
	return s.runStart(c, fuzzer, revision, false)
}

func (s *Server) restartActiveRevision(c echo.Context) error {
	fuzzer := pathFuzzer(c)
	revision, err := s.activeRevisionOf(c.Request().Context(), fuzzer)
	if err != nil {
		return err
	}
	return s.runStart(c, fuzzer, revision, true)
}

func (s *Server) stopActiveRevision(c echo.Context) error {
	fuzzer := pathFuzzer(c)
	revision, err := s.activeRevisionOf(c.Request().Context(), fuzzer)
	if err != nil {
		return err
	}
	return s.runStop(c, fuzzer, revision)
}
