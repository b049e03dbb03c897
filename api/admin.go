package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
)

// Catalog administration. Images, engines, and languages are global; the
// delete handlers refuse removal while anything still references the entry.

func (s *Server) listImages(c echo.Context) error {
	images, err := s.store.Catalog.ListImages(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, images)
}

func (s *Server) putImage(c echo.Context) error {
	var image model.Image
	if err := c.Bind(&image); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed image request")
	}
	if image.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	switch image.Status {
	case model.ImageReady, model.ImageNotReady:
	case "":
		image.Status = model.ImageNotReady
	default:
		return apierr.ErrValidationFailed.WithMessage("unknown image status %q", image.Status)
	}
	ctx := c.Request().Context()
	for _, engineID := range image.Engines {
		if _, err := s.store.Catalog.GetEngine(ctx, engineID); err != nil {
			return err
		}
	}

	status := http.StatusCreated
	if id := c.Param("image_id"); id != "" {
		existing, err := s.store.Catalog.GetImage(ctx, id)
		if err != nil {
			return err
		}
		image.ID = existing.ID
		image.Rev = existing.Rev
		status = http.StatusOK
	}
	if err := s.store.Catalog.PutImage(ctx, &image); err != nil {
		return err
	}
	common.Logger.WithField("image", image.Name).Info("saved image")
	return c.JSON(status, image)
}

func (s *Server) getImage(c echo.Context) error {
	image, err := s.store.Catalog.GetImage(c.Request().Context(), c.Param("image_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, image)
}

func (s *Server) deleteImage(c echo.Context) error {
	ctx := c.Request().Context()
	image, err := s.store.Catalog.GetImage(ctx, c.Param("image_id"))
	if err != nil {
		return err
	}
	revisions, err := s.store.Revisions.ListByImage(ctx, image.ID)
	if err != nil {
		return err
	}
	if len(revisions) > 0 {
		return apierr.ErrImageInUseBy.WithParams(revisionNames(revisions)...)
	}
	if err := s.store.Catalog.DeleteImage(ctx, image); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listEngines(c echo.Context) error {
	engines, err := s.store.Catalog.ListEngines(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engines)
}

func (s *Server) putEngine(c echo.Context) error {
	var engine model.Engine
	if err := c.Bind(&engine); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed engine request")
	}
	if engine.DisplayName == "" {
		return apierr.ErrValidationFailed.WithMessage("display_name is required")
	}
	switch engine.Family {
	case model.FamilyLibFuzzer, model.FamilyAFL:
	default:
		return apierr.ErrUnknownEngineFamily.WithParams(string(engine.Family))
	}
	ctx := c.Request().Context()
	for _, langID := range engine.Langs {
		if _, err := s.store.Catalog.GetLang(ctx, langID); err != nil {
			return err
		}
	}

	status := http.StatusCreated
	if id := c.Param("engine_id"); id != "" {
		existing, err := s.store.Catalog.GetEngine(ctx, id)
		if err != nil {
			return err
		}
		engine.ID = existing.ID
		engine.Rev = existing.Rev
		status = http.StatusOK
	}
	if err := s.store.Catalog.PutEngine(ctx, &engine); err != nil {
		return err
	}
	return c.JSON(status, engine)
}

func (s *Server) getEngine(c echo.Context) error {
	engine, err := s.store.Catalog.GetEngine(c.Request().Context(), c.Param("engine_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engine)
}

func (s *Server) deleteEngine(c echo.Context) error {
	ctx := c.Request().Context()
	engine, err := s.store.Catalog.GetEngine(ctx, c.Param("engine_id"))
	if err != nil {
		return err
	}
	fuzzers, err := s.store.Fuzzers.ListByEngine(ctx, engine.ID)
	if err != nil {
		return err
	}
	if len(fuzzers) > 0 {
		return apierr.ErrEngineInUseBy.WithParams(fuzzerNames(fuzzers)...)
	}
	if err := s.store.Catalog.DeleteEngine(ctx, engine); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listLangs(c echo.Context) error {
	langs, err := s.store.Catalog.ListLangs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, langs)
}

func (s *Server) putLang(c echo.Context) error {
	var lang model.Lang
	if err := c.Bind(&lang); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed language request")
	}
	if lang.DisplayName == "" {
		return apierr.ErrValidationFailed.WithMessage("display_name is required")
	}
	ctx := c.Request().Context()
	status := http.StatusCreated
	if id := c.Param("lang_id"); id != "" {
		existing, err := s.store.Catalog.GetLang(ctx, id)
		if err != nil {
			return err
		}
		lang.ID = existing.ID
		lang.Rev = existing.Rev
		status = http.StatusOK
	}
	if err := s.store.Catalog.PutLang(ctx, &lang); err != nil {
		return err
	}
	return c.JSON(status, lang)
}

func (s *Server) getLang(c echo.Context) error {
	lang, err := s.store.Catalog.GetLang(c.Request().Context(), c.Param("lang_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, lang)
}

func (s *Server) deleteLang(c echo.Context) error {
	ctx := c.Request().Context()
	lang, err := s.store.Catalog.GetLang(ctx, c.Param("lang_id"))
	if err != nil {
		return err
	}
	fuzzers, err := s.store.Fuzzers.ListByLang(ctx, lang.ID)
	if err != nil {
		return err
	}
	if len(fuzzers) > 0 {
		return apierr.ErrLangInUseBy.WithParams(fuzzerNames(fuzzers)...)
	}
	if err := s.store.Catalog.DeleteLang(ctx, lang); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) listIntegrationTypes(c echo.Context) error {
	types, err := s.store.Catalog.ListIntegrationTypes(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types)
}

// putIntegrationType saves a tracker kind. Integration types are never
// deleted because parked reports may still reference them.
func (s *Server) putIntegrationType(c echo.Context) error {
	var it model.IntegrationType
	if err := c.Bind(&it); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed integration type request")
	}
	if it.DisplayName == "" {
		return apierr.ErrValidationFailed.WithMessage("display_name is required")
	}
	ctx := c.Request().Context()
	status := http.StatusCreated
	if id := c.Param("type_id"); id != "" {
		existing, err := s.store.Catalog.GetIntegrationType(ctx, id)
		if err != nil {
			return err
		}
		it.ID = existing.ID
		it.Rev = existing.Rev
		status = http.StatusOK
	}
	if err := s.store.Catalog.PutIntegrationType(ctx, &it); err != nil {
		return err
	}
	return c.JSON(status, it)
}

func fuzzerNames(fuzzers []model.Fuzzer) []interface{} {
	names := make([]interface{}, 0, len(fuzzers))
	for i := range fuzzers {
		names = append(names, fuzzers[i].Name)
	}
	return names
}

func revisionNames(revisions []model.Revision) []interface{} {
	names := make([]interface{}, 0, len(revisions))
	for i := range revisions {
		names = append(names, revisions[i].Name)
	}
	return names
}

// Pool administration crosses user boundaries, so it lives under /admin and
// validates node groups on behalf of the owning user.

func (s *Server) adminListPools(c echo.Context) error {
	pools, err := s.pools.ListPools(c.Request().Context(), c.QueryParam("user_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pools)
}

// checkPoolOwner verifies the pool's user exists and is a client account.
func (s *Server) checkPoolOwner(ctx context.Context, userID string) error {
	if userID == "" {
		return apierr.ErrValidationFailed.WithMessage("user_id is required")
	}
	owner, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if owner.IsAdmin {
		return apierr.ErrClientAccountRequired
	}
	return nil
}

func (s *Server) adminCreatePool(c echo.Context) error {
	var pool model.Pool
	if err := c.Bind(&pool); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed pool request")
	}
	if pool.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	ctx := c.Request().Context()
	if err := s.checkPoolOwner(ctx, pool.UserID); err != nil {
		return err
	}
	if !pool.NodeGroup.Validate(model.PlatformType(s.cfg.Platform.Type)) {
		return apierr.ErrWrongNodeGroup
	}
	created, err := s.pools.CreatePool(ctx, &pool)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) adminGetPool(c echo.Context) error {
	pool, err := s.pools.GetPool(c.Request().Context(), c.Param("pool_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pool)
}

func (s *Server) adminUpdatePool(c echo.Context) error {
	var pool model.Pool
	if err := c.Bind(&pool); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed pool request")
	}
	ctx := c.Request().Context()
	if err := s.checkPoolOwner(ctx, pool.UserID); err != nil {
		return err
	}
	if !pool.NodeGroup.Validate(model.PlatformType(s.cfg.Platform.Type)) {
		return apierr.ErrWrongNodeGroup
	}
	pool.ID = c.Param("pool_id")
	updated, err := s.pools.UpdatePool(ctx, &pool)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) adminDeletePool(c echo.Context) error {
	if err := s.pools.DeletePool(c.Request().Context(), c.Param("pool_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
