package db

import (
	"context"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

// catalogStore persists the admin-managed catalog. Catalog documents are not
// soft-deletable; deletion is refused while references exist instead.
type catalogStore struct {
	svc *Service
}

func (s *catalogStore) PutImage(ctx context.Context, image *model.Image) error {
	image.Kind = model.KindImage
	if image.ID == "" {
		image.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, image.ID, image)
	if err != nil {
		return err
	}
	image.Rev = rev
	return nil
}

func (s *catalogStore) GetImage(ctx context.Context, id string) (*model.Image, error) {
	var image model.Image
	if err := s.svc.get(ctx, id, &image, apierr.ErrImageNotFound); err != nil {
		return nil, err
	}
	if image.Kind != model.KindImage {
		return nil, apierr.ErrImageNotFound
	}
	return &image, nil
}

func (s *catalogStore) ListImages(ctx context.Context) ([]model.Image, error) {
	q := &mangoQuery{selector: map[string]interface{}{"kind": model.KindImage}, sort: sortByName}
	images := []model.Image{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var image model.Image
		if err := rows.ScanDoc(&image); err != nil {
			return err
		}
		images = append(images, image)
		return nil
	})
	return images, err
}

func (s *catalogStore) DeleteImage(ctx context.Context, image *model.Image) error {
	return s.svc.delete(ctx, image.ID, image.Rev)
}

func (s *catalogStore) PutEngine(ctx context.Context, engine *model.Engine) error {
	engine.Kind = model.KindEngine
	if engine.ID == "" {
		engine.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, engine.ID, engine)
	if err != nil {
		return err
	}
	engine.Rev = rev
	return nil
}

func (s *catalogStore) GetEngine(ctx context.Context, id string) (*model.Engine, error) {
	var engine model.Engine
	if err := s.svc.get(ctx, id, &engine, apierr.ErrEngineNotFound); err != nil {
		return nil, err
	}
	if engine.Kind != model.KindEngine {
		return nil, apierr.ErrEngineNotFound
	}
	return &engine, nil
}

func (s *catalogStore) ListEngines(ctx context.Context) ([]model.Engine, error) {
	q := &mangoQuery{selector: map[string]interface{}{"kind": model.KindEngine}}
	engines := []model.Engine{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var engine model.Engine
		if err := rows.ScanDoc(&engine); err != nil {
			return err
		}
		engines = append(engines, engine)
		return nil
	})
	return engines, err
}

func (s *catalogStore) DeleteEngine(ctx context.Context, engine *model.Engine) error {
	return s.svc.delete(ctx, engine.ID, engine.Rev)
}

func (s *catalogStore) PutLang(ctx context.Context, lang *model.Lang) error {
	lang.Kind = model.KindLang
	if lang.ID == "" {
		lang.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, lang.ID, lang)
	if err != nil {
		return err
	}
	lang.Rev = rev
	return nil
}

func (s *catalogStore) GetLang(ctx context.Context, id string) (*model.Lang, error) {
	var lang model.Lang
	if err := s.svc.get(ctx, id, &lang, apierr.ErrLangNotFound); err != nil {
		return nil, err
	}
	if lang.Kind != model.KindLang {
		return nil, apierr.ErrLangNotFound
	}
	return &lang, nil
}

func (s *catalogStore) ListLangs(ctx context.Context) ([]model.Lang, error) {
	q := &mangoQuery{selector: map[string]interface{}{"kind": model.KindLang}}
	langs := []model.Lang{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var lang model.Lang
		if err := rows.ScanDoc(&lang); err != nil {
			return err
		}
		langs = append(langs, lang)
		return nil
	})
	return langs, err
}

func (s *catalogStore) DeleteLang(ctx context.Context, lang *model.Lang) error {
	return s.svc.delete(ctx, lang.ID, lang.Rev)
}

func (s *catalogStore) PutIntegrationType(ctx context.Context, it *model.IntegrationType) error {
	it.Kind = model.KindIntegrationType
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, it.ID, it)
	if err != nil {
		return err
	}
	it.Rev = rev
	return nil
}

func (s *catalogStore) GetIntegrationType(ctx context.Context, id string) (*model.IntegrationType, error) {
	var it model.IntegrationType
	if err := s.svc.get(ctx, id, &it, apierr.ErrIntegrationTypeNotFound); err != nil {
		return nil, err
	}
	if it.Kind != model.KindIntegrationType {
		return nil, apierr.ErrIntegrationTypeNotFound
	}
	return &it, nil
}

func (s *catalogStore) ListIntegrationTypes(ctx context.Context) ([]model.IntegrationType, error) {
	q := &mangoQuery{selector: map[string]interface{}{"kind": model.KindIntegrationType}}
	types := []model.IntegrationType{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var it model.IntegrationType
		if err := rows.ScanDoc(&it); err != nil {
			return err
		}
		types = append(types, it)
		return nil
	})
	return types, err
}
