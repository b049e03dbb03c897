// Package api exposes the gateway's HTTP surface: session and CSRF handling,
// the user/project/fuzzer/revision resource tree, uploads and downloads,
// statistics, integrations, and the admin subtree.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/auth"
	"github.com/fuzzbed/gateway/client"
	"github.com/fuzzbed/gateway/config"
	"github.com/fuzzbed/gateway/db"
)

// Objects is the object-store surface the handlers need.
type Objects interface {
	Upload(ctx context.Context, key string, body io.Reader, limit int64) error
	Download(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	CopyPrefix(ctx context.Context, srcPrefix, dstPrefix string) error
	HasObjects(ctx context.Context, prefix string) (bool, error)
	DeletePrefix(ctx context.Context, prefix string) error
	TarPrefix(ctx context.Context, prefix string, w io.Writer) error
	Ping(ctx context.Context) error
}

// Sender publishes outbound broker messages.
type Sender interface {
	Send(ctx context.Context, queueName, msgType string, payload interface{}) error
}

// Resetter wipes the database. Only wired outside production.
type Resetter interface {
	Reset(ctx context.Context) error
}

// Server bundles the gateway's HTTP dependencies.
type Server struct {
	cfg       *config.Config
	store     *db.Store
	objects   Objects
	sessions  *auth.Sessions
	csrf      *auth.CSRF
	protector *auth.Protector
	pools     client.PoolManager
	sender    Sender
	resetter  Resetter
	echo      *echo.Echo
}

// NewServer builds the echo server with the standard middleware stack and all
// routes registered.
func NewServer(cfg *config.Config, store *db.Store, objects Objects, sessions *auth.Sessions, csrf *auth.CSRF, protector *auth.Protector, pools client.PoolManager, sender Sender) *Server {
	s := &Server{
		cfg:       cfg,
		store:     store,
		objects:   objects,
		sessions:  sessions,
		csrf:      csrf,
		protector: protector,
		pools:     pools,
		sender:    sender,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(securityHeaders())
	if cfg.Server.BodyLimit != "" {
		e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowCredentials: true,
			AllowMethods: []string{
				http.MethodGet, http.MethodPost, http.MethodPut,
				http.MethodPatch, http.MethodDelete, http.MethodOptions,
			},
			AllowHeaders: []string{
				echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, headerCSRFToken,
			},
			ExposeHeaders: []string{headerCSRFToken},
		}))
	}
	if cfg.Server.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.Server.RateLimit))))
	}

	s.echo = e
	s.registerRoutes()
	return s
}

// WithResetter enables the test-reset endpoint outside production.
func (s *Server) WithResetter(r Resetter) *Server {
	s.resetter = r
	return s
}

// Echo exposes the underlying router, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start listens on the configured address until the server is shut down.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	return s.echo.StartServer(srv)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/healthz", s.healthz)

	v1 := e.Group("/api/v1")
	if s.cfg.CSRF.Enabled {
		v1.Use(s.csrfMiddleware())
	}

	v1.POST("/login", s.login)
	v1.POST("/logout", s.logout, s.requireSession)
	v1.POST("/security/csrf-token", s.refreshCSRFToken, s.requireSession)

	// Public catalog, readable without a session.
	v1.GET("/config", s.platformConfig)
	v1.GET("/config/langs", s.publicLangs)
	v1.GET("/config/engines", s.publicEngines)
	v1.GET("/config/integration_types", s.publicIntegrationTypes)

	if s.cfg.Platform.Environment != "prod" {
		v1.DELETE("/__test__/reset", s.resetAll)
	}

	users := v1.Group("/users", s.requireSession)
	users.GET("", s.listUsers, s.requireAdmin)
	users.POST("", s.createUser, s.requireAdmin)
	users.GET("/self", s.getSelf)
	users.PATCH("/self", s.patchSelf)
	users.GET("/lookup", s.lookupUser, s.requireAdmin)
	users.GET("/count", s.countUsers, s.requireAdmin)

	user := users.Group("/:user_id", s.resolvePathUser)
	user.GET("", s.getUser)
	user.PATCH("", s.patchUser)
	user.DELETE("", s.deleteUser)

	// Client subtrees: projects and pools only exist for client accounts.
	pools := user.Group("/pools", s.requireClientAccount)
	pools.GET("", s.listUserPools)
	pools.POST("", s.createUserPool)
	pools.GET("/:pool_id", s.getUserPool)
	pools.PUT("/:pool_id", s.updateUserPool)
	pools.DELETE("/:pool_id", s.deleteUserPool)

	projects := user.Group("/projects", s.requireClientAccount)
	projects.GET("", s.listProjects)
	projects.POST("", s.createProject)

	project := projects.Group("/:project_id", s.resolveProject)
	project.GET("", s.getProject)
	project.PATCH("", s.patchProject)
	project.DELETE("", s.deleteProject)

	integrations := project.Group("/integrations")
	integrations.GET("", s.listIntegrations)
	integrations.POST("", s.createIntegration)
	integration := integrations.Group("/:integration_id", s.resolveIntegration)
	integration.GET("", s.getIntegration)
	integration.PATCH("", s.patchIntegration)
	integration.DELETE("", s.deleteIntegration)

	fuzzers := project.Group("/fuzzers")
	fuzzers.GET("", s.listFuzzers)
	fuzzers.POST("", s.createFuzzer)
	fuzzers.GET("/trashbin", s.listFuzzerTrashbin)
	fuzzers.GET("/trashbin/count", s.countFuzzerTrashbin)
	fuzzers.DELETE("/trashbin/:fuzzer_id", s.eraseTrashbinFuzzer)

	fuzzer := fuzzers.Group("/:fuzzer_id", s.resolveFuzzer)
	fuzzer.GET("", s.getFuzzer)
	fuzzer.PATCH("", s.patchFuzzer)
	fuzzer.DELETE("", s.deleteFuzzer)
	fuzzer.GET("/statistics", s.fuzzerStatistics)
	fuzzer.GET("/crashes", s.fuzzerCrashes)
	fuzzer.POST("/actions/start", s.startActiveRevision)
	fuzzer.POST("/actions/restart", s.restartActiveRevision)
	fuzzer.POST("/actions/stop", s.stopActiveRevision)
	fuzzer.GET("/files/corpus", s.downloadActiveCorpus)

	revisions := fuzzer.Group("/revisions")
	revisions.GET("", s.listRevisions)
	revisions.POST("", s.createRevision)
	revisions.GET("/active", s.getActiveRevision)
	revisions.PUT("/active", s.setActiveRevision)

	revisions.PUT("/:revision_id/files/corpus", s.copyCorpus, s.resolveRevision(apierr.ErrTargetRevisionNotFound))

	revision := revisions.Group("/:revision_id", s.resolveRevision(apierr.ErrRevisionNotFound))
	revision.GET("", s.getRevision)
	revision.PATCH("", s.patchRevision)
	revision.DELETE("", s.deleteRevision)
	revision.POST("/actions/start", s.startRevision)
	revision.POST("/actions/restart", s.restartRevision)
	revision.POST("/actions/stop", s.stopRevision)
	revision.PATCH("/resources", s.patchRevisionResources)
	revision.GET("/statistics", s.revisionStatistics)
	revision.GET("/crashes", s.revisionCrashes)
	revision.GET("/files/corpus", s.downloadCorpus)
	revision.PUT("/files/:kind", s.uploadRevisionFile)
	revision.GET("/files/:kind", s.downloadRevisionFile)

	admin := v1.Group("/admin", s.requireSession, s.requireAdmin)
	admin.GET("/users", s.listUsers)
	admin.POST("/users", s.createUser)
	admin.GET("/images", s.listImages)
	admin.POST("/images", s.putImage)
	admin.GET("/images/:image_id", s.getImage)
	admin.PUT("/images/:image_id", s.putImage)
	admin.DELETE("/images/:image_id", s.deleteImage)
	admin.GET("/engines", s.listEngines)
	admin.POST("/engines", s.putEngine)
	admin.GET("/engines/:engine_id", s.getEngine)
	admin.PUT("/engines/:engine_id", s.putEngine)
	admin.DELETE("/engines/:engine_id", s.deleteEngine)
	admin.GET("/langs", s.listLangs)
	admin.POST("/langs", s.putLang)
	admin.GET("/langs/:lang_id", s.getLang)
	admin.PUT("/langs/:lang_id", s.putLang)
	admin.DELETE("/langs/:lang_id", s.deleteLang)
	admin.GET("/integration_types", s.listIntegrationTypes)
	admin.POST("/integration_types", s.putIntegrationType)
	admin.PUT("/integration_types/:type_id", s.putIntegrationType)
	admin.GET("/pools", s.adminListPools)
	admin.POST("/pools", s.adminCreatePool)
	admin.GET("/pools/:pool_id", s.adminGetPool)
	admin.PUT("/pools/:pool_id", s.adminUpdatePool)
	admin.DELETE("/pools/:pool_id", s.adminDeletePool)
}

func securityHeaders() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			return next(c)
		}
	}
}
