// Package dbtest provides in-memory fakes of the db store interfaces. The
// fakes enforce the same uniqueness and revision rules as the CouchDB-backed
// stores, so handler tests exercise real conflict paths.
package dbtest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/db"
	"github.com/fuzzbed/gateway/model"
)

// Fake is the shared in-memory state behind every store interface.
type Fake struct {
	mu sync.Mutex

	Users            map[string]*model.User
	Projects         map[string]*model.Project
	Fuzzers          map[string]*model.Fuzzer
	Revisions        map[string]*model.Revision
	Images           map[string]*model.Image
	Engines          map[string]*model.Engine
	Langs            map[string]*model.Lang
	IntegrationTypes map[string]*model.IntegrationType
	Integrations     map[string]*model.Integration
	Crashes          map[string]*model.Crash
	FuzzerStats      []*model.FuzzerStatistics
	CrashDays        map[string]*model.CrashStatistics
	Sessions         map[string]*model.Session
	Lockouts         map[string]*model.Lockout
	Unsent           map[string]*model.UnsentMessage

	// Err fails every operation when set.
	Err error
}

// NewStore builds a db.Store backed entirely by in-memory fakes.
func NewStore() (*db.Store, *Fake) {
	f := &Fake{
		Users:            map[string]*model.User{},
		Projects:         map[string]*model.Project{},
		Fuzzers:          map[string]*model.Fuzzer{},
		Revisions:        map[string]*model.Revision{},
		Images:           map[string]*model.Image{},
		Engines:          map[string]*model.Engine{},
		Langs:            map[string]*model.Lang{},
		IntegrationTypes: map[string]*model.IntegrationType{},
		Integrations:     map[string]*model.Integration{},
		Crashes:          map[string]*model.Crash{},
		CrashDays:        map[string]*model.CrashStatistics{},
		Sessions:         map[string]*model.Session{},
		Lockouts:         map[string]*model.Lockout{},
		Unsent:           map[string]*model.UnsentMessage{},
	}
	return &db.Store{
		Users:        &fakeUsers{f},
		Projects:     &fakeProjects{f},
		Fuzzers:      &fakeFuzzers{f},
		Revisions:    &fakeRevisions{f},
		Catalog:      &fakeCatalog{f},
		Integrations: &fakeIntegrations{f},
		Crashes:      &fakeCrashes{f},
		Statistics:   &fakeStatistics{f},
		Sessions:     &fakeSessions{f},
		Lockouts:     &fakeLockouts{f},
		Unsent:       &fakeUnsent{f},
		Health:       &fakeHealth{f},
	}, f
}

func matchState(e model.Erasable, state model.RemovalState, now time.Time) bool {
	phase := e.RemovalStateAt(now)
	switch state {
	case model.RemovalAll:
		return true
	case model.RemovalVisible:
		return phase == model.RemovalPresent || phase == model.RemovalTrashBin
	default:
		return phase == state
	}
}

func bumpRev(current string) string {
	n, _ := strconv.Atoi(current)
	return strconv.Itoa(n + 1)
}

func paginate[T any](items []T, page db.Page) []T {
	start := page.Num * page.Size
	if start >= len(items) {
		return []T{}
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

type fakeUsers struct{ f *Fake }

func (s *fakeUsers) Create(ctx context.Context, user *model.User) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	now := time.Now().UTC()
	for _, u := range s.f.Users {
		if u.Name == user.Name && matchState(u.Erasable, model.RemovalAll, now) {
			return apierr.ErrUserExists
		}
	}
	user.Kind = model.KindUser
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Rev = "1"
	clone := *user
	s.f.Users[user.ID] = &clone
	return nil
}

func (s *fakeUsers) GetByID(ctx context.Context, id string) (*model.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	u, ok := s.f.Users[id]
	if !ok {
		return nil, apierr.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *fakeUsers) GetByName(ctx context.Context, name string, state model.RemovalState) (*model.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	now := time.Now().UTC()
	for _, u := range s.f.Users {
		if u.Name == name && matchState(u.Erasable, state, now) {
			clone := *u
			return &clone, nil
		}
	}
	return nil, apierr.ErrUserNotFound
}

func (s *fakeUsers) List(ctx context.Context, state model.RemovalState, page db.Page) ([]model.User, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	now := time.Now().UTC()
	users := []model.User{}
	for _, u := range s.f.Users {
		if matchState(u.Erasable, state, now) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return paginate(users, page), nil
}

func (s *fakeUsers) Count(ctx context.Context, state model.RemovalState) (int, error) {
	users, err := s.List(ctx, state, db.NormalizePage(0, 200))
	return len(users), err
}

func (s *fakeUsers) Update(ctx context.Context, user *model.User) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	existing, ok := s.f.Users[user.ID]
	if !ok || existing.Rev != user.Rev {
		return apierr.ErrConcurrentUpdate
	}
	user.Rev = bumpRev(user.Rev)
	clone := *user
	s.f.Users[user.ID] = &clone
	return nil
}

func (s *fakeUsers) Erase(ctx context.Context, user *model.User) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Users, user.ID)
	return nil
}

func (s *fakeUsers) ListErasing(ctx context.Context) ([]model.User, error) {
	return s.List(ctx, model.RemovalErasing, db.NormalizePage(0, 200))
}

type fakeProjects struct{ f *Fake }

func (s *fakeProjects) Create(ctx context.Context, project *model.Project) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	now := time.Now().UTC()
	for _, p := range s.f.Projects {
		if p.OwnerID == project.OwnerID && p.Name == project.Name && matchState(p.Erasable, model.RemovalVisible, now) {
			return apierr.ErrProjectExists
		}
	}
	project.Kind = model.KindProject
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	project.Rev = "1"
	clone := *project
	s.f.Projects[project.ID] = &clone
	return nil
}

func (s *fakeProjects) GetByID(ctx context.Context, id string) (*model.Project, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	p, ok := s.f.Projects[id]
	if !ok {
		return nil, apierr.ErrProjectNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *fakeProjects) ListByOwner(ctx context.Context, ownerID string, state model.RemovalState, page db.Page) ([]model.Project, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	now := time.Now().UTC()
	projects := []model.Project{}
	for _, p := range s.f.Projects {
		if p.OwnerID == ownerID && matchState(p.Erasable, state, now) {
			projects = append(projects, *p)
		}
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return paginate(projects, page), nil
}

func (s *fakeProjects) CountByOwner(ctx context.Context, ownerID string, state model.RemovalState) (int, error) {
	projects, err := s.ListByOwner(ctx, ownerID, state, db.NormalizePage(0, 200))
	return len(projects), err
}

func (s *fakeProjects) ListByPool(ctx context.Context, poolID string) ([]model.Project, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	projects := []model.Project{}
	for _, p := range s.f.Projects {
		if p.PoolID == poolID && matchState(p.Erasable, model.RemovalVisible, now) {
			projects = append(projects, *p)
		}
	}
	return projects, nil
}

func (s *fakeProjects) Update(ctx context.Context, project *model.Project) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	existing, ok := s.f.Projects[project.ID]
	if !ok || existing.Rev != project.Rev {
		return apierr.ErrConcurrentUpdate
	}
	project.Rev = bumpRev(project.Rev)
	clone := *project
	s.f.Projects[project.ID] = &clone
	return nil
}

func (s *fakeProjects) Erase(ctx context.Context, project *model.Project) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Projects, project.ID)
	return nil
}

func (s *fakeProjects) ListErasing(ctx context.Context) ([]model.Project, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	projects := []model.Project{}
	for _, p := range s.f.Projects {
		if matchState(p.Erasable, model.RemovalErasing, now) {
			projects = append(projects, *p)
		}
	}
	return projects, nil
}

type fakeFuzzers struct{ f *Fake }

func (s *fakeFuzzers) Create(ctx context.Context, fuzzer *model.Fuzzer) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	now := time.Now().UTC()
	for _, fz := range s.f.Fuzzers {
		if fz.ProjectID == fuzzer.ProjectID && fz.Name == fuzzer.Name && matchState(fz.Erasable, model.RemovalVisible, now) {
			return apierr.ErrFuzzerExists
		}
	}
	fuzzer.Kind = model.KindFuzzer
	if fuzzer.ID == "" {
		fuzzer.ID = uuid.NewString()
	}
	fuzzer.Rev = "1"
	clone := *fuzzer
	s.f.Fuzzers[fuzzer.ID] = &clone
	return nil
}

func (s *fakeFuzzers) GetByID(ctx context.Context, id string) (*model.Fuzzer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	fz, ok := s.f.Fuzzers[id]
	if !ok {
		return nil, apierr.ErrFuzzerNotFound
	}
	clone := *fz
	return &clone, nil
}

func (s *fakeFuzzers) ListByProject(ctx context.Context, projectID string, state model.RemovalState, page db.Page) ([]model.Fuzzer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	now := time.Now().UTC()
	fuzzers := []model.Fuzzer{}
	for _, fz := range s.f.Fuzzers {
		if fz.ProjectID == projectID && matchState(fz.Erasable, state, now) {
			fuzzers = append(fuzzers, *fz)
		}
	}
	sort.Slice(fuzzers, func(i, j int) bool { return fuzzers[i].Name < fuzzers[j].Name })
	return paginate(fuzzers, page), nil
}

func (s *fakeFuzzers) CountByProject(ctx context.Context, projectID string, state model.RemovalState) (int, error) {
	fuzzers, err := s.ListByProject(ctx, projectID, state, db.NormalizePage(0, 200))
	return len(fuzzers), err
}

func (s *fakeFuzzers) ListByLang(ctx context.Context, langID string) ([]model.Fuzzer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	fuzzers := []model.Fuzzer{}
	for _, fz := range s.f.Fuzzers {
		if fz.Lang == langID && matchState(fz.Erasable, model.RemovalVisible, now) {
			fuzzers = append(fuzzers, *fz)
		}
	}
	return fuzzers, nil
}

func (s *fakeFuzzers) ListByEngine(ctx context.Context, engineID string) ([]model.Fuzzer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	fuzzers := []model.Fuzzer{}
	for _, fz := range s.f.Fuzzers {
		if fz.Engine == engineID && matchState(fz.Erasable, model.RemovalVisible, now) {
			fuzzers = append(fuzzers, *fz)
		}
	}
	return fuzzers, nil
}

func (s *fakeFuzzers) Update(ctx context.Context, fuzzer *model.Fuzzer) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	existing, ok := s.f.Fuzzers[fuzzer.ID]
	if !ok || existing.Rev != fuzzer.Rev {
		return apierr.ErrConcurrentUpdate
	}
	fuzzer.Rev = bumpRev(fuzzer.Rev)
	clone := *fuzzer
	s.f.Fuzzers[fuzzer.ID] = &clone
	return nil
}

func (s *fakeFuzzers) Erase(ctx context.Context, fuzzer *model.Fuzzer) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Fuzzers, fuzzer.ID)
	return nil
}

func (s *fakeFuzzers) ListErasing(ctx context.Context) ([]model.Fuzzer, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	fuzzers := []model.Fuzzer{}
	for _, fz := range s.f.Fuzzers {
		if matchState(fz.Erasable, model.RemovalErasing, now) {
			fuzzers = append(fuzzers, *fz)
		}
	}
	return fuzzers, nil
}

type fakeRevisions struct{ f *Fake }

func (s *fakeRevisions) Create(ctx context.Context, revision *model.Revision) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	now := time.Now().UTC()
	for _, r := range s.f.Revisions {
		if r.FuzzerID == revision.FuzzerID && r.Name == revision.Name && matchState(r.Erasable, model.RemovalVisible, now) {
			return apierr.ErrRevisionExists
		}
	}
	revision.Kind = model.KindRevision
	if revision.ID == "" {
		revision.ID = uuid.NewString()
	}
	revision.Rev = "1"
	clone := *revision
	s.f.Revisions[revision.ID] = &clone
	return nil
}

func (s *fakeRevisions) GetByID(ctx context.Context, id string) (*model.Revision, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	r, ok := s.f.Revisions[id]
	if !ok {
		return nil, apierr.ErrRevisionNotFound
	}
	clone := *r
	return &clone, nil
}

func (s *fakeRevisions) ListByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState, page db.Page) ([]model.Revision, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	now := time.Now().UTC()
	revisions := []model.Revision{}
	for _, r := range s.f.Revisions {
		if r.FuzzerID == fuzzerID && matchState(r.Erasable, state, now) {
			revisions = append(revisions, *r)
		}
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i].Created > revisions[j].Created })
	return paginate(revisions, page), nil
}

func (s *fakeRevisions) CountByFuzzer(ctx context.Context, fuzzerID string, state model.RemovalState) (int, error) {
	revisions, err := s.ListByFuzzer(ctx, fuzzerID, state, db.NormalizePage(0, 200))
	return len(revisions), err
}

func (s *fakeRevisions) ListByImage(ctx context.Context, imageID string) ([]model.Revision, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	revisions := []model.Revision{}
	for _, r := range s.f.Revisions {
		if r.ImageID == imageID && matchState(r.Erasable, model.RemovalVisible, now) {
			revisions = append(revisions, *r)
		}
	}
	return revisions, nil
}

func (s *fakeRevisions) Update(ctx context.Context, revision *model.Revision) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	existing, ok := s.f.Revisions[revision.ID]
	if !ok || existing.Rev != revision.Rev {
		return apierr.ErrConcurrentUpdate
	}
	revision.Rev = bumpRev(revision.Rev)
	clone := *revision
	s.f.Revisions[revision.ID] = &clone
	return nil
}

func (s *fakeRevisions) Erase(ctx context.Context, revision *model.Revision) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Revisions, revision.ID)
	return nil
}

func (s *fakeRevisions) ListErasing(ctx context.Context) ([]model.Revision, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	revisions := []model.Revision{}
	for _, r := range s.f.Revisions {
		if matchState(r.Erasable, model.RemovalErasing, now) {
			revisions = append(revisions, *r)
		}
	}
	return revisions, nil
}

type fakeCatalog struct{ f *Fake }

func (s *fakeCatalog) PutImage(ctx context.Context, image *model.Image) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	image.Kind = model.KindImage
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	image.Rev = bumpRev(image.Rev)
	clone := *image
	s.f.Images[image.ID] = &clone
	return nil
}

func (s *fakeCatalog) GetImage(ctx context.Context, id string) (*model.Image, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	img, ok := s.f.Images[id]
	if !ok {
		return nil, apierr.ErrImageNotFound
	}
	clone := *img
	return &clone, nil
}

func (s *fakeCatalog) ListImages(ctx context.Context) ([]model.Image, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	images := []model.Image{}
	for _, img := range s.f.Images {
		images = append(images, *img)
	}
	sort.Slice(images, func(i, j int) bool { return images[i].Name < images[j].Name })
	return images, nil
}

func (s *fakeCatalog) DeleteImage(ctx context.Context, image *model.Image) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Images, image.ID)
	return nil
}

func (s *fakeCatalog) PutEngine(ctx context.Context, engine *model.Engine) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	engine.Kind = model.KindEngine
	if engine.ID == "" {
		engine.ID = uuid.NewString()
	}
	engine.Rev = bumpRev(engine.Rev)
	clone := *engine
	s.f.Engines[engine.ID] = &clone
	return nil
}

func (s *fakeCatalog) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	engine, ok := s.f.Engines[id]
	if !ok {
		return nil, apierr.ErrEngineNotFound
	}
	clone := *engine
	return &clone, nil
}

func (s *fakeCatalog) ListEngines(ctx context.Context) ([]model.Engine, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	engines := []model.Engine{}
	for _, e := range s.f.Engines {
		engines = append(engines, *e)
	}
	return engines, nil
}

func (s *fakeCatalog) DeleteEngine(ctx context.Context, engine *model.Engine) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Engines, engine.ID)
	return nil
}

func (s *fakeCatalog) PutLang(ctx context.Context, lang *model.Lang) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	lang.Kind = model.KindLang
	if lang.ID == "" {
		lang.ID = uuid.NewString()
	}
	lang.Rev = bumpRev(lang.Rev)
	clone := *lang
	s.f.Langs[lang.ID] = &clone
	return nil
}

func (s *fakeCatalog) GetLang(ctx context.Context, id string) (*model.Lang, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	lang, ok := s.f.Langs[id]
	if !ok {
		return nil, apierr.ErrLangNotFound
	}
	clone := *lang
	return &clone, nil
}

func (s *fakeCatalog) ListLangs(ctx context.Context) ([]model.Lang, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	langs := []model.Lang{}
	for _, l := range s.f.Langs {
		langs = append(langs, *l)
	}
	return langs, nil
}

func (s *fakeCatalog) DeleteLang(ctx context.Context, lang *model.Lang) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Langs, lang.ID)
	return nil
}

func (s *fakeCatalog) PutIntegrationType(ctx context.Context, it *model.IntegrationType) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	it.Kind = model.KindIntegrationType
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	it.Rev = bumpRev(it.Rev)
	clone := *it
	s.f.IntegrationTypes[it.ID] = &clone
	return nil
}

func (s *fakeCatalog) GetIntegrationType(ctx context.Context, id string) (*model.IntegrationType, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	it, ok := s.f.IntegrationTypes[id]
	if !ok {
		return nil, apierr.ErrIntegrationTypeNotFound
	}
	clone := *it
	return &clone, nil
}

func (s *fakeCatalog) ListIntegrationTypes(ctx context.Context) ([]model.IntegrationType, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	types := []model.IntegrationType{}
	for _, it := range s.f.IntegrationTypes {
		types = append(types, *it)
	}
	return types, nil
}

type fakeIntegrations struct{ f *Fake }

func (s *fakeIntegrations) Create(ctx context.Context, integration *model.Integration) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	now := time.Now().UTC()
	for _, in := range s.f.Integrations {
		if in.ProjectID == integration.ProjectID && in.Name == integration.Name && matchState(in.Erasable, model.RemovalVisible, now) {
			return apierr.ErrIntegrationExists
		}
	}
	integration.Kind = model.KindIntegration
	if integration.ID == "" {
		integration.ID = uuid.NewString()
	}
	integration.Rev = "1"
	clone := *integration
	s.f.Integrations[integration.ID] = &clone
	return nil
}

func (s *fakeIntegrations) GetByID(ctx context.Context, id string) (*model.Integration, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	in, ok := s.f.Integrations[id]
	if !ok {
		return nil, apierr.ErrIntegrationNotFound
	}
	clone := *in
	return &clone, nil
}

func (s *fakeIntegrations) ListByProject(ctx context.Context, projectID string, state model.RemovalState, page db.Page) ([]model.Integration, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	integrations := []model.Integration{}
	for _, in := range s.f.Integrations {
		if in.ProjectID == projectID && matchState(in.Erasable, state, now) {
			integrations = append(integrations, *in)
		}
	}
	sort.Slice(integrations, func(i, j int) bool { return integrations[i].Name < integrations[j].Name })
	return paginate(integrations, page), nil
}

func (s *fakeIntegrations) ListEnabledByProject(ctx context.Context, projectID string) ([]model.Integration, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	integrations := []model.Integration{}
	for _, in := range s.f.Integrations {
		if in.ProjectID == projectID && in.Enabled && matchState(in.Erasable, model.RemovalPresent, now) {
			integrations = append(integrations, *in)
		}
	}
	return integrations, nil
}

func (s *fakeIntegrations) Update(ctx context.Context, integration *model.Integration) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	existing, ok := s.f.Integrations[integration.ID]
	if !ok || existing.Rev != integration.Rev {
		return apierr.ErrConcurrentUpdate
	}
	integration.Rev = bumpRev(integration.Rev)
	clone := *integration
	s.f.Integrations[integration.ID] = &clone
	return nil
}

func (s *fakeIntegrations) Erase(ctx context.Context, integration *model.Integration) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Integrations, integration.ID)
	return nil
}

func (s *fakeIntegrations) ListErasing(ctx context.Context) ([]model.Integration, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	now := time.Now().UTC()
	integrations := []model.Integration{}
	for _, in := range s.f.Integrations {
		if matchState(in.Erasable, model.RemovalErasing, now) {
			integrations = append(integrations, *in)
		}
	}
	return integrations, nil
}

type fakeCrashes struct{ f *Fake }

func (s *fakeCrashes) Insert(ctx context.Context, crash *model.Crash) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	crash.Kind = model.KindCrash
	if crash.ID == "" {
		crash.ID = uuid.NewString()
	}
	crash.Rev = "1"
	clone := *crash
	s.f.Crashes[crash.ID] = &clone
	return nil
}

func (s *fakeCrashes) GetByID(ctx context.Context, id string) (*model.Crash, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	c, ok := s.f.Crashes[id]
	if !ok {
		return nil, apierr.ErrFileNotFound
	}
	clone := *c
	return &clone, nil
}

func (s *fakeCrashes) GetByInputHash(ctx context.Context, fuzzerRev, inputHash string) (*model.Crash, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	for _, c := range s.f.Crashes {
		if c.FuzzerRev == fuzzerRev && c.InputHash == inputHash {
			clone := *c
			return &clone, nil
		}
	}
	return nil, nil
}

func (s *fakeCrashes) ListByFuzzer(ctx context.Context, fuzzerID, from, to string, page db.Page) ([]model.Crash, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	crashes := []model.Crash{}
	for _, c := range s.f.Crashes {
		if c.FuzzerID != fuzzerID {
			continue
		}
		if from != "" && c.Created < from {
			continue
		}
		if to != "" && c.Created > to {
			continue
		}
		crashes = append(crashes, *c)
	}
	sort.Slice(crashes, func(i, j int) bool { return crashes[i].Created > crashes[j].Created })
	return paginate(crashes, page), nil
}

func (s *fakeCrashes) CountByFuzzer(ctx context.Context, fuzzerID, from, to string) (int, error) {
	crashes, err := s.ListByFuzzer(ctx, fuzzerID, from, to, db.NormalizePage(0, 200))
	return len(crashes), err
}

func (s *fakeCrashes) Update(ctx context.Context, crash *model.Crash) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	existing, ok := s.f.Crashes[crash.ID]
	if !ok || existing.Rev != crash.Rev {
		return apierr.ErrConcurrentUpdate
	}
	crash.Rev = bumpRev(crash.Rev)
	clone := *crash
	s.f.Crashes[crash.ID] = &clone
	return nil
}

type fakeStatistics struct{ f *Fake }

func (s *fakeStatistics) InsertFuzzerStats(ctx context.Context, stats *model.FuzzerStatistics) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	stats.Kind = model.KindFuzzerStats
	if stats.ID == "" {
		stats.ID = uuid.NewString()
	}
	clone := *stats
	s.f.FuzzerStats = append(s.f.FuzzerStats, &clone)
	return nil
}

func (s *fakeStatistics) ListFuzzerStats(ctx context.Context, fuzzerID, from, to string) ([]model.FuzzerStatistics, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	records := []model.FuzzerStatistics{}
	for _, st := range s.f.FuzzerStats {
		if st.FuzzerID != fuzzerID {
			continue
		}
		if from != "" && st.Date < from {
			continue
		}
		if to != "" && st.Date > to {
			continue
		}
		records = append(records, *st)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Date < records[j].Date })
	return records, nil
}

func (s *fakeStatistics) BumpCrashDay(ctx context.Context, fuzzerID, day string, uniqueDelta, totalDelta int64) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	key := fuzzerID + "|" + day
	rollup, ok := s.f.CrashDays[key]
	if !ok {
		rollup = &model.CrashStatistics{
			Kind:     model.KindCrashStats,
			Date:     day,
			FuzzerID: fuzzerID,
		}
		s.f.CrashDays[key] = rollup
	}
	rollup.Unique += uniqueDelta
	rollup.Total += totalDelta
	return nil
}

func (s *fakeStatistics) ListCrashDays(ctx context.Context, fuzzerID, from, to string) ([]model.CrashStatistics, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	days := []model.CrashStatistics{}
	for _, d := range s.f.CrashDays {
		if d.FuzzerID != fuzzerID {
			continue
		}
		if from != "" && d.Date < from {
			continue
		}
		if to != "" && d.Date > to {
			continue
		}
		days = append(days, *d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

type fakeSessions struct{ f *Fake }

func (s *fakeSessions) Put(ctx context.Context, session *model.Session) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	session.Kind = model.KindSession
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	clone := *session
	s.f.Sessions[session.ID] = &clone
	return nil
}

func (s *fakeSessions) Get(ctx context.Context, id string) (*model.Session, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	session, ok := s.f.Sessions[id]
	if !ok {
		return nil, apierr.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (s *fakeSessions) Delete(ctx context.Context, id string) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Sessions, id)
	return nil
}

func (s *fakeSessions) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	cutoff := common.FormatTime(now)
	deleted := 0
	for id, session := range s.f.Sessions {
		if session.Expires <= cutoff {
			delete(s.f.Sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeLockouts struct{ f *Fake }

func (s *fakeLockouts) Upsert(ctx context.Context, lockout *model.Lockout) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return s.f.Err
	}
	lockout.Kind = model.KindLockout
	clone := *lockout
	s.f.Lockouts[lockout.Username+"|"+lockout.Nonce] = &clone
	return nil
}

func (s *fakeLockouts) Get(ctx context.Context, username, nonce string) (*model.Lockout, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	if s.f.Err != nil {
		return nil, s.f.Err
	}
	lockout, ok := s.f.Lockouts[username+"|"+nonce]
	if !ok {
		return nil, nil
	}
	clone := *lockout
	return &clone, nil
}

func (s *fakeLockouts) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	cutoff := common.FormatTime(now)
	deleted := 0
	for key, lockout := range s.f.Lockouts {
		if lockout.Expires <= cutoff {
			delete(s.f.Lockouts, key)
			deleted++
		}
	}
	return deleted, nil
}

type fakeUnsent struct{ f *Fake }

func (s *fakeUnsent) Add(ctx context.Context, msg *model.UnsentMessage) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	msg.Kind = model.KindUnsentMessage
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	clone := *msg
	s.f.Unsent[msg.ID] = &clone
	return nil
}

func (s *fakeUnsent) List(ctx context.Context, limit int) ([]model.UnsentMessage, error) {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	msgs := []model.UnsentMessage{}
	for _, m := range s.f.Unsent {
		if limit > 0 && len(msgs) >= limit {
			break
		}
		msgs = append(msgs, *m)
	}
	return msgs, nil
}

func (s *fakeUnsent) Delete(ctx context.Context, msg *model.UnsentMessage) error {
	s.f.mu.Lock()
	defer s.f.mu.Unlock()
	delete(s.f.Unsent, msg.ID)
	return nil
}

type fakeHealth struct{ f *Fake }

func (h *fakeHealth) Ping(ctx context.Context) error {
	return h.f.Err
}
