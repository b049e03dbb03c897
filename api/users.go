package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/auth"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
)

type createUserRequest struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
	Email       string `json:"email"`
	IsAdmin     bool   `json:"is_admin"`
}

type patchUserRequest struct {
	DisplayName *string `json:"display_name"`
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	IsDisabled  *bool   `json:"is_disabled"`
	IsAdmin     *bool   `json:"is_admin"`
}

func (s *Server) listUsers(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	users, err := s.store.Users.List(c.Request().Context(), state, pageParam(c))
	if err != nil {
		return err
	}
	out := make([]*model.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToResponse())
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) countUsers(c echo.Context) error {
	state, err := removalStateParam(c)
	if err != nil {
		return err
	}
	count, err := s.store.Users.Count(c.Request().Context(), state)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

func (s *Server) lookupUser(c echo.Context) error {
	name := c.QueryParam("name")
	if name == "" {
		return apierr.ErrValidationFailed.WithMessage("name query parameter is required")
	}
	user, err := s.store.Users.GetByName(c.Request().Context(), name, model.RemovalVisible)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

// createUser provisions an account. Only system administrators may mint new
// administrators.
func (s *Server) createUser(c echo.Context) error {
	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed user request")
	}
	if req.Name == "" || req.Password == "" {
		return apierr.ErrValidationFailed.WithMessage("name and password are required")
	}
	if req.IsAdmin && !currentUser(c).IsSystem {
		return apierr.ErrSystemAdminRequired
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return err
	}
	user := &model.User{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		PasswordHash: hash,
		Email:        req.Email,
		IsConfirmed:  true,
		IsAdmin:      req.IsAdmin,
		Created:      common.FormatTime(time.Now().UTC()),
	}
	if err := s.store.Users.Create(c.Request().Context(), user); err != nil {
		return err
	}
	common.Logger.WithField("user", user.Name).Info("created user")
	return c.JSON(http.StatusCreated, user.ToResponse())
}

func (s *Server) getSelf(c echo.Context) error {
	return c.JSON(http.StatusOK, currentUser(c).ToResponse())
}

// patchSelf lets a user change their own profile and password. Privilege and
// account-state fields are not reachable here.
func (s *Server) patchSelf(c echo.Context) error {
	var req patchUserRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed user request")
	}
	if req.IsAdmin != nil || req.IsDisabled != nil {
		return apierr.ErrAccessDenied
	}
	user := currentUser(c)
	if err := applyUserPatch(user, &req); err != nil {
		return err
	}
	if err := s.store.Users.Update(c.Request().Context(), user); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

func (s *Server) getUser(c echo.Context) error {
	return c.JSON(http.StatusOK, pathUser(c).ToResponse())
}

func (s *Server) patchUser(c echo.Context) error {
	var req patchUserRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed user request")
	}
	cur := currentUser(c)
	target := pathUser(c)
	if req.IsAdmin != nil && !cur.IsSystem {
		return apierr.ErrSystemAdminRequired
	}
	if req.IsDisabled != nil && !cur.IsAdmin {
		return apierr.ErrAccessDenied
	}
	if err := applyUserPatch(target, &req); err != nil {
		return err
	}
	if req.IsDisabled != nil {
		target.IsDisabled = *req.IsDisabled
	}
	if req.IsAdmin != nil {
		target.IsAdmin = *req.IsAdmin
	}
	if err := s.store.Users.Update(c.Request().Context(), target); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, target.ToResponse())
}

func applyUserPatch(user *model.User, req *patchUserRequest) error {
	if req.DisplayName != nil {
		user.DisplayName = *req.DisplayName
	}
	if req.Email != nil {
		user.Email = *req.Email
	}
	if req.Password != nil {
		if *req.Password == "" {
			return apierr.ErrValidationFailed.WithMessage("password must not be empty")
		}
		hash, err := auth.HashPassword(*req.Password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	return nil
}

// deleteUser handles the Delete, Restore, and Erase actions. Deleting an
// account stops everything it still has running; erasure is finished later
// by the background sweeper.
func (s *Server) deleteUser(c echo.Context) error {
	action, err := removalActionParam(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	cur := currentUser(c)
	target := pathUser(c)
	now := time.Now().UTC()

	switch action {
	case model.ActionDelete:
		// Clients and admins may delete their own account; only the system
		// admin cannot.
		if target.ID == cur.ID && cur.IsSystem {
			return apierr.ErrSelfDeleteForbidden
		}
		if target.IsSystem {
			return apierr.ErrSystemUserProtected
		}
		if target.IsDeleted() {
			return apierr.ErrUserDeleted
		}
		target.MarkDeleted(now, s.cfg.Trashbin.Expiration, noBackupParam(c))
		if err := s.store.Users.Update(ctx, target); err != nil {
			return err
		}
		if err := s.stopUserRevisions(ctx, target.ID); err != nil {
			return err
		}
		common.Logger.WithField("user", target.Name).Info("moved user to trash bin")

	case model.ActionRestore:
		if target.RemovalStateAt(now) != model.RemovalTrashBin {
			return apierr.ErrUserNotFound
		}
		if newName := c.QueryParam("new_name"); newName != "" {
			target.Name = newName
		}
		target.Restore()
		if err := s.store.Users.Update(ctx, target); err != nil {
			return err
		}

	case model.ActionErase:
		if target.ID == cur.ID && cur.IsSystem {
			return apierr.ErrSelfDeleteForbidden
		}
		if target.IsSystem {
			return apierr.ErrSystemUserProtected
		}
		target.MarkErasing(now, noBackupParam(c))
		if err := s.store.Users.Update(ctx, target); err != nil {
			return err
		}
		if err := s.stopUserRevisions(ctx, target.ID); err != nil {
			return err
		}
		if err := s.cascadeEraseUser(ctx, target.ID, now, target.NoBackup); err != nil {
			return err
		}
		common.Logger.WithField("user", target.Name).Warn("scheduled user erasure")
	}
	return c.JSON(http.StatusOK, target.ToResponse())
}

