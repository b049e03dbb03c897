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

type projectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	PoolID      *string `json:"pool_id"`
}

func (s *Server) listProjects(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	projects, err := s.store.Projects.ListByOwner(c.Request().Context(), pathUser(c).ID, state, pageParam(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, projects)
}

// checkPoolOwnership verifies the pool exists and belongs to the given user.
// Foreign pools read as not found.
func (s *Server) checkPoolOwnership(ctx context.Context, poolID, userID string) error {
	pool, err := s.pools.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	if pool.UserID != userID {
		return apierr.ErrPoolNotFound
	}
	return nil
}

func (s *Server) createProject(c echo.Context) error {
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed project request")
	}
	if req.Name == nil || *req.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	ctx := c.Request().Context()
	owner := pathUser(c)

	project := &model.Project{
		Name:    *req.Name,
		OwnerID: owner.ID,
		Created: common.FormatTime(time.Now().UTC()),
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.PoolID != nil && *req.PoolID != "" {
		if err := s.checkPoolOwnership(ctx, *req.PoolID, owner.ID); err != nil {
			return err
		}
		project.PoolID = *req.PoolID
	}
	if err := s.store.Projects.Create(ctx, project); err != nil {
		return err
	}
	common.Logger.WithField("project", project.Name).Info("created project")
	return c.JSON(http.StatusCreated, project)
}

func (s *Server) getProject(c echo.Context) error {
	return c.JSON(http.StatusOK, pathProject(c))
}

func (s *Server) patchProject(c echo.Context) error {
	var req projectRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed project request")
	}
	ctx := c.Request().Context()
	project := pathProject(c)

	if req.Name != nil {
		if *req.Name == "" {
			return apierr.ErrValidationFailed.WithMessage("name must not be empty")
		}
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.PoolID != nil {
		if *req.PoolID != "" {
			if err := s.checkPoolOwnership(ctx, *req.PoolID, project.OwnerID); err != nil {
				return err
			}
		}
		project.PoolID = *req.PoolID
	}
	if err := s.store.Projects.Update(ctx, project); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, project)
}

func (s *Server) deleteProject(c echo.Context) error {
	action, err := removalActionParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	project := pathProject(c)
	now := time.Now().UTC()

	switch action {
	case model.ActionDelete:
		if project.IsDeleted() {
			return apierr.ErrProjectDeleted
		}
		project.MarkDeleted(now, s.cfg.Trashbin.Expiration, noBackupParam(c))
		if err := s.store.Projects.Update(ctx, project); err != nil {
			return err
		}
		if err := s.stopProjectRevisions(ctx, project.ID); err != nil {
			return err
		}

	case model.ActionRestore:
		if project.RemovalStateAt(now) != model.RemovalTrashBin {
			return apierr.ErrProjectNotFound
		}
		if newName := c.QueryParam("new_name"); newName != "" {
			project.Name = newName
		}
		project.Restore()
		if err := s.store.Projects.Update(ctx, project); err != nil {
			return err
		}

	case model.ActionErase:
		project.MarkErasing(now, noBackupParam(c))
		if err := s.store.Projects.Update(ctx, project); err != nil {
			return err
		}
		if err := s.stopProjectRevisions(ctx, project.ID); err != nil {
			return err
		}
		if err := s.cascadeEraseProject(ctx, project.ID, now, project.NoBackup); err != nil {
			return err
		}
		common.Logger.WithField("project", project.Name).Warn("scheduled project erasure")
	}
	return c.JSON(http.StatusOK, project)
}

// Pool proxy endpoints. Pools live in the pool-manager service; the gateway
// scopes them to the path user and validates node groups against the
// platform type before forwarding.

func (s *Server) listUserPools(c echo.Context) error {
	pools, err := s.pools.ListPools(c.Request().Context(), pathUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pools)
}

func (s *Server) createUserPool(c echo.Context) error {
	var pool model.Pool
	if err := c.Bind(&pool); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed pool request")
	}
	if pool.Name == "" {
		return apierr.ErrValidationFailed.WithMessage("name is required")
	}
	if !pool.NodeGroup.Validate(model.PlatformType(s.cfg.Platform.Type)) {
		return apierr.ErrWrongNodeGroup
	}
	pool.UserID = pathUser(c).ID
	created, err := s.pools.CreatePool(c.Request().Context(), &pool)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

func (s *Server) getUserPool(c echo.Context) error {
	pool, err := s.pools.GetPool(c.Request().Context(), c.Param("pool_id"))
	if err != nil {
		return err
	}
	if pool.UserID != pathUser(c).ID {
		return apierr.ErrPoolNotFound
	}
	return c.JSON(http.StatusOK, pool)
}

func (s *Server) updateUserPool(c echo.Context) error {
	ctx := c.Request().Context()
	owner := pathUser(c)
	if err := s.checkPoolOwnership(ctx, c.Param("pool_id"), owner.ID); err != nil {
		return err
	}
	var pool model.Pool
	if err := c.Bind(&pool); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed pool request")
	}
	if !pool.NodeGroup.Validate(model.PlatformType(s.cfg.Platform.Type)) {
		return apierr.ErrWrongNodeGroup
	}
	pool.ID = c.Param("pool_id")
	pool.UserID = owner.ID
	updated, err := s.pools.UpdatePool(ctx, &pool)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteUserPool(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.checkPoolOwnership(ctx, c.Param("pool_id"), pathUser(c).ID); err != nil {
		return err
	}
	if err := s.pools.DeletePool(ctx, c.Param("pool_id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
