package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

// Context keys for the session user and resolved path entities.
const (
	ctxSessionUser = "session_user"
	ctxPathUser    = "path_user"
	ctxProject     = "path_project"
	ctxIntegration = "path_integration"
	ctxFuzzer      = "path_fuzzer"
	ctxRevision    = "path_revision"
)

func currentUser(c echo.Context) *model.User {
	return c.Get(ctxSessionUser).(*model.User)
}

func pathUser(c echo.Context) *model.User {
	return c.Get(ctxPathUser).(*model.User)
}

func pathProject(c echo.Context) *model.Project {
	return c.Get(ctxProject).(*model.Project)
}

func pathIntegration(c echo.Context) *model.Integration {
	return c.Get(ctxIntegration).(*model.Integration)
}

func pathFuzzer(c echo.Context) *model.Fuzzer {
	return c.Get(ctxFuzzer).(*model.Fuzzer)
}

func pathRevision(c echo.Context) *model.Revision {
	return c.Get(ctxRevision).(*model.Revision)
}

func cookieValue(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// isMutation reports whether the request changes state in a way the deleted
// and CSRF guards care about. DELETE is excluded from the deleted guard
// because restore and erase arrive as DELETE with an action parameter.
func isMutation(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodDelete:
		return false
	}
	return true
}

// requireSession resolves the SESSION_ID cookie to a live user. The USER_ID
// cookie must name the same user, so a stale pair left over from a previous
// login cannot act for a different account.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		sessionID := cookieValue(c, cookieSession)
		userID := cookieValue(c, cookieUserID)
		if sessionID == "" || userID == "" {
			return apierr.ErrAuthorizationRequired
		}
		user, err := s.sessions.Resolve(c.Request().Context(), sessionID)
		if err != nil {
			return err
		}
		if user.ID != userID {
			return apierr.ErrSessionNotFound
		}
		c.Set(ctxSessionUser, user)
		return next(c)
	}
}

// csrfExempt lists the mutating endpoints the double-submit check skips:
// login has no token yet, and the refresh endpoint exists to replace an
// expired one.
func csrfExempt(path string) bool {
	switch path {
	case "/api/v1/login", "/api/v1/security/csrf-token":
		return true
	}
	return false
}

// csrfMiddleware enforces the double-submit scheme on every mutating request.
// The header and cookie copies must match byte for byte and the token must
// validate for the USER_ID cookie.
func (s *Server) csrfMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			method := c.Request().Method
			if !isMutation(method) && method != http.MethodDelete {
				return next(c)
			}
			if csrfExempt(c.Request().URL.Path) {
				return next(c)
			}

			userID := cookieValue(c, cookieUserID)
			if userID == "" {
				return apierr.ErrAuthorizationRequired
			}
			headerToken := c.Request().Header.Get(headerCSRFToken)
			cookieToken := cookieValue(c, cookieCSRF)
			if headerToken == "" || cookieToken == "" {
				return apierr.ErrCSRFTokenMissing
			}
			if headerToken != cookieToken {
				return apierr.ErrCSRFTokenMismatch
			}
			if err := s.csrf.Validate(headerToken, userID); err != nil {
				return err
			}
			return next(c)
		}
	}
}

// requireAdmin gates administrator-only routes.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if !currentUser(c).IsAdmin {
			return apierr.ErrAdminRequired
		}
		return next(c)
	}
}

// resolvePathUser loads the :user_id account and enforces ownership rules:
// clients only reach their own subtree, and only system administrators may
// mutate other administrators.
func (s *Server) resolvePathUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cur := currentUser(c)
		id := c.Param("user_id")
		if !cur.IsAdmin && cur.ID != id {
			return apierr.ErrAccessDenied
		}
		target, err := s.store.Users.GetByID(c.Request().Context(), id)
		if err != nil {
			return err
		}
		method := c.Request().Method
		if method != http.MethodGet && target.IsAdmin && target.ID != cur.ID && !cur.IsSystem {
			return apierr.ErrSystemAdminRequired
		}
		if isMutation(method) && target.IsDeleted() {
			return apierr.ErrUserDeleted
		}
		c.Set(ctxPathUser, target)
		return next(c)
	}
}

// requireClientAccount refuses the projects and pools subtrees for
// administrator accounts, which own neither.
func (s *Server) requireClientAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if pathUser(c).IsAdmin {
			return apierr.ErrClientAccountRequired
		}
		return next(c)
	}
}

// resolveProject loads :project_id and checks it belongs to the path user.
// Cross-owner ids read as not found, never as forbidden.
func (s *Server) resolveProject(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		project, err := s.store.Projects.GetByID(c.Request().Context(), c.Param("project_id"))
		if err != nil {
			return err
		}
		if project.OwnerID != pathUser(c).ID {
			return apierr.ErrProjectNotFound
		}
		if isMutation(c.Request().Method) && project.IsDeleted() {
			return apierr.ErrProjectDeleted
		}
		c.Set(ctxProject, project)
		return next(c)
	}
}

// resolveIntegration loads :integration_id scoped to the path project.
func (s *Server) resolveIntegration(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		integration, err := s.store.Integrations.GetByID(c.Request().Context(), c.Param("integration_id"))
		if err != nil {
			return err
		}
		if integration.ProjectID != pathProject(c).ID {
			return apierr.ErrIntegrationNotFound
		}
		if isMutation(c.Request().Method) && integration.IsDeleted() {
			return apierr.ErrIntegrationDeleted
		}
		c.Set(ctxIntegration, integration)
		return next(c)
	}
}

// resolveFuzzer loads :fuzzer_id scoped to the path project.
func (s *Server) resolveFuzzer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		fuzzer, err := s.store.Fuzzers.GetByID(c.Request().Context(), c.Param("fuzzer_id"))
		if err != nil {
			return err
		}
		if fuzzer.ProjectID != pathProject(c).ID {
			return apierr.ErrFuzzerNotFound
		}
		if isMutation(c.Request().Method) && fuzzer.IsDeleted() {
			return apierr.ErrFuzzerDeleted
		}
		c.Set(ctxFuzzer, fuzzer)
		return next(c)
	}
}

// resolveRevision loads :revision_id scoped to the path fuzzer. notFound is
// what a missing or foreign revision reports; the corpus-copy route uses the
// target-specific code.
func (s *Server) resolveRevision(notFound *apierr.Error) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			revision, err := s.store.Revisions.GetByID(c.Request().Context(), c.Param("revision_id"))
			if err != nil {
				if apierr.IsCode(err, apierr.ErrRevisionNotFound.Code) {
					return notFound
				}
				return err
			}
			if revision.FuzzerID != pathFuzzer(c).ID {
				return notFound
			}
			if isMutation(c.Request().Method) && revision.IsDeleted() {
				return apierr.ErrRevisionDeleted
			}
			c.Set(ctxRevision, revision)
			return next(c)
		}
	}
}
