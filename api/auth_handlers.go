package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
)

// deviceCookieMaxAge keeps the bruteforce device marker far beyond the
// session lifetime, so a returning device keeps its own lockout bucket.
const deviceCookieMaxAge = 365 * 24 * time.Hour

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) setCookie(c echo.Context, name, value string, maxAge time.Duration, httpOnly bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: httpOnly,
		Secure:   s.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearCookie(c echo.Context, name string, httpOnly bool) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: httpOnly,
		Secure:   s.cfg.Cookie.Secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// issueCSRF mints a token for the user and delivers both copies of the
// double-submit pair: the cookie and the response header.
func (s *Server) issueCSRF(c echo.Context, userID string) (string, error) {
	token, err := s.csrf.Issue(userID)
	if err != nil {
		return "", err
	}
	s.setCookie(c, cookieCSRF, token, s.csrf.Expiration(), false)
	c.Response().Header().Set(headerCSRFToken, token)
	return token, nil
}

// login authenticates credentials behind the device-cookie bruteforce guard
// and issues the session cookie pair.
func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return apierr.ErrValidationFailed.WithMessage("malformed login request")
	}
	if req.Username == "" || req.Password == "" {
		return apierr.ErrValidationFailed.WithMessage("username and password are required")
	}
	ctx := c.Request().Context()
	device := cookieValue(c, cookieDevice)

	if err := s.protector.CheckLocked(ctx, req.Username, device); err != nil {
		return err
	}

	session, user, err := s.sessions.Login(ctx, req.Username, req.Password, c.Request().UserAgent())
	if err != nil {
		if apierr.IsCode(err, apierr.ErrLoginFailed.Code) {
			if regErr := s.protector.RegisterFailure(ctx, req.Username, device); regErr != nil {
				common.Logger.WithError(regErr).Error("recording failed login")
			}
		}
		return err
	}
	s.protector.RegisterSuccess(req.Username, device)

	if device == "" {
		fresh, err := s.protector.IssueCookie(user.Name)
		if err != nil {
			return err
		}
		s.setCookie(c, cookieDevice, fresh, deviceCookieMaxAge, true)
	}
	s.setCookie(c, cookieSession, session.ID, s.sessions.Expiration(), true)
	s.setCookie(c, cookieUserID, user.ID, s.sessions.Expiration(), false)
	if s.cfg.CSRF.Enabled {
		if _, err := s.issueCSRF(c, user.ID); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, user.ToResponse())
}

// logout drops the server-side session and expires the cookie pair. The
// device cookie survives so the lockout bucket stays attached.
func (s *Server) logout(c echo.Context) error {
	if sessionID := cookieValue(c, cookieSession); sessionID != "" {
		if err := s.sessions.Logout(c.Request().Context(), sessionID); err != nil {
			return err
		}
	}
	s.clearCookie(c, cookieSession, true)
	s.clearCookie(c, cookieUserID, false)
	s.clearCookie(c, cookieCSRF, false)
	return c.NoContent(http.StatusNoContent)
}

// refreshCSRFToken replaces an expired double-submit token for the session
// user.
func (s *Server) refreshCSRFToken(c echo.Context) error {
	token, err := s.issueCSRF(c, currentUser(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
