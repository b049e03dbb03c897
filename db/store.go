package db

import (
	"context"
	"time"

	"github.com/fuzzbed/gateway/model"
)

// UserStore persists platform accounts.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByName(ctx context.Context, name string, state model.RemovalState) (*model.User, error)
	List(ctx context.Context, state model.RemovalState, page Page) ([]model.User, error)
	Count(ctx context.Context, state model.RemovalState) (int, error)
	Update(ctx context.Context, user *model.User) error
	Erase(ctx context.Context, user *model.User) error
	ListErasing(ctx context.Context) ([]model.User, error)
}

// ProjectStore persists projects.
type ProjectStore interface {
	Create(ctx context.Context, project *model.Project) error
	GetByID(ctx context.Context, id string) (*model.Project, error)
	ListByOwner(ctx context.Context, ownerID string, state model.RemovalState, page Page) ([]model.Project, error)
	CountByOwner(ctx context.Context, ownerID string, state model.RemovalState) (int, error)
	ListByPool(ctx context.Context, poolID string) ([]model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Erase(ctx context.Context, project *model.Project) error
	ListErasing(ctx context.Context) ([]model.Project, error)
}

// FuzzerStore persists fuzzers.
type FuzzerStore interface {
	Create(ctx context.Context, fuzzer *model.Fuzzer) error
	GetByID(ctx context.Context, id string) (*model.Fuzzer, error)
	ListByProject(ctx context.Context, projectID string, state model.RemovalState, page Page) ([]model.Fuzzer, error)
	CountByProject(ctx context.Context, projectID string, state model.RemovalState) (int, error)
	ListByLang(ctx context.Context, langID string) ([]model.Fuzzer, error)
	ListByEngine(ctx context.Context, engineID string) ([]model.Fuzzer, error)
	Update(ctx context.Context, fuzzer *model.Fuzzer) error
	Erase(ctx context.Context, fuzzer *model.Fuzzer) error
	ListErasing(ctx context.Context) ([]model.Fuzzer, error)
}

// RevisionStore persists revisions.
type RevisionStore interface {
	Create(ctx context.Context, revision *model.Revision) error
	GetByID(ctx context.Context, id string) (*model.Revision, error)
	ListByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState, page Page) ([]model.Revision, error)
	CountByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState) (int, error)
	ListByImage(ctx context.Context, imageID string) ([]model.Revision, error)
	Update(ctx context.Context, revision *model.Revision) error
	Erase(ctx context.Context, revision *model.Revision) error
	ListErasing(ctx context.Context) ([]model.Revision, error)
}

// CatalogStore persists the admin-managed catalog: images, engines,
// languages, and integration types.
type CatalogStore interface {
	PutImage(ctx context.Context, image *model.Image) error
	GetImage(ctx context.Context, id string) (*model.Image, error)
	ListImages(ctx context.Context) ([]model.Image, error)
	DeleteImage(ctx context.Context, image *model.Image) error

	PutEngine(ctx context.Context, engine *model.Engine) error
	GetEngine(ctx context.Context, id string) (*model.Engine, error)
	ListEngines(ctx context.Context) ([]model.Engine, error)
	DeleteEngine(ctx context.Context, engine *model.Engine) error

	PutLang(ctx context.Context, lang *model.Lang) error
	GetLang(ctx context.Context, id string) (*model.Lang, error)
	ListLangs(ctx context.Context) ([]model.Lang, error)
	DeleteLang(ctx context.Context, lang *model.Lang) error

	PutIntegrationType(ctx context.Context, it *model.IntegrationType) error
	GetIntegrationType(ctx context.Context, id string) (*model.IntegrationType, error)
	ListIntegrationTypes(ctx context.Context) ([]model.IntegrationType, error)
}

// IntegrationStore persists bug-tracker integrations.
type IntegrationStore interface {
	Create(ctx context.Context, integration *model.Integration) error
	GetByID(ctx context.Context, id string) (*model.Integration, error)
	ListByProject(ctx context.Context, projectID string, state model.RemovalState, page Page) ([]model.Integration, error)
	ListEnabledByProject(ctx context.Context, projectID string) ([]model.Integration, error)
	Update(ctx context.Context, integration *model.Integration) error
	Erase(ctx context.Context, integration *model.Integration) error
	ListErasing(ctx context.Context) ([]model.Integration, error)
}

// CrashStore persists crash events.
type CrashStore interface {
	Insert(ctx context.Context, crash *model.Crash) error
	GetByID(ctx context.Context, id string) (*model.Crash, error)
	GetByInputHash(ctx context.Context, fuzzerRev, inputHash string) (*model.Crash, error)
	ListByFuzzer(ctx context.Context, fuzzerID, from, to string, page Page) ([]model.Crash, error)
	CountByFuzzer(ctx context.Context, fuzzerID, from, to string) (int, error)
	Update(ctx context.Context, crash *model.Crash) error
}

// StatisticsStore persists fuzzer statistics and crash rollups.
type StatisticsStore interface {
	InsertFuzzerStats(ctx context.Context, stats *model.FuzzerStatistics) error
	ListFuzzerStats(ctx context.Context, fuzzerID, from, to string) ([]model.FuzzerStatistics, error)
	BumpCrashDay(ctx context.Context, fuzzerID, day string, uniqueDelta, totalDelta int64) error
	ListCrashDays(ctx context.Context, fuzzerID, from, to string) ([]model.CrashStatistics, error)
}

// SessionStore persists login sessions.
type SessionStore interface {
	Put(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// LockoutStore persists bruteforce-protection rows.
type LockoutStore interface {
	Upsert(ctx context.Context, lockout *model.Lockout) error
	Get(ctx context.Context, username, nonce string) (*model.Lockout, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// UnsentStore parks broker payloads that failed to publish.
type UnsentStore interface {
	Add(ctx context.Context, msg *model.UnsentMessage) error
	List(ctx context.Context, limit int) ([]model.UnsentMessage, error)
	Delete(ctx context.Context, msg *model.UnsentMessage) error
}

// Pinger reports backend reachability for health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store aggregates the per-entity stores. Handlers depend on the interfaces,
// so tests swap in fakes per entity.
type Store struct {
	Users        UserStore
	Projects     ProjectStore
	Fuzzers      FuzzerStore
	Revisions    RevisionStore
	Catalog      CatalogStore
	Integrations IntegrationStore
	Crashes      CrashStore
	Statistics   StatisticsStore
	Sessions     SessionStore
	Lockouts     LockoutStore
	Unsent       UnsentStore

	Health Pinger
}

// NewStore wires the CouchDB-backed stores.
func NewStore(svc *Service) *Store {
	return &Store{
		Users:        &userStore{svc},
		Projects:     &projectStore{svc},
		Fuzzers:      &fuzzerStore{svc},
		Revisions:    &revisionStore{svc},
		Catalog:      &catalogStore{svc},
		Integrations: &integrationStore{svc},
		Crashes:      &crashStore{svc},
		Statistics:   &statisticsStore{svc},
		Sessions:     &sessionStore{svc},
		Lockouts:     &lockoutStore{svc},
		Unsent:       &unsentStore{svc},
		Health:       svc,
	}
}

// Ping reports database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.Health.Ping(ctx)
}
