package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
)

// healthz reports readiness of the database and the object store.
func (s *Server) healthz(c echo.Context) error {
	ctx := c.Request().Context()
	if err := s.store.Ping(ctx); err != nil {
		common.Logger.WithError(err).Error("database health check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
	}
	if err := s.objects.Ping(ctx); err != nil {
		common.Logger.WithError(err).Error("object store health check failed")
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "storage unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// platformConfig publishes the client-relevant platform settings: resource
// floors for the revision editor and upload caps for the file pickers.
func (s *Server) platformConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"environment":   s.cfg.Platform.Environment,
		"platform_type": s.cfg.Platform.Type,
		"csrf_enabled":  s.cfg.CSRF.Enabled,
		"resources": map[string]int64{
			"min_cpu":   s.cfg.Resources.MinCPU,
			"min_ram":   s.cfg.Resources.MinRAM,
			"min_tmpfs": s.cfg.Resources.MinTmpfs,
		},
		"upload_limits": map[string]int64{
			"binaries": s.cfg.Uploads.BinariesLimit,
			"seeds":    s.cfg.Uploads.SeedsLimit,
			"config":   s.cfg.Uploads.ConfigLimit,
		},
	})
}

func (s *Server) publicLangs(c echo.Context) error {
	langs, err := s.store.Catalog.ListLangs(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, langs)
}

func (s *Server) publicEngines(c echo.Context) error {
	engines, err := s.store.Catalog.ListEngines(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, engines)
}

func (s *Server) publicIntegrationTypes(c echo.Context) error {
	types, err := s.store.Catalog.ListIntegrationTypes(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, types)
}

// resetAll wipes the database for end-to-end test runs. The route only
// exists outside production and does nothing unless a resetter was wired.
func (s *Server) resetAll(c echo.Context) error {
	if s.resetter == nil {
		return apierr.New(http.StatusNotFound, "E_ROUTE_NOT_FOUND", "route not found")
	}
	if err := s.resetter.Reset(c.Request().Context()); err != nil {
		return err
	}
	common.Logger.Warn("database wiped through test reset endpoint")
	return c.NoContent(http.StatusNoContent)
}
