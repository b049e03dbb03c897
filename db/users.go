package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

type userStore struct {
	svc *Service
}

// Create inserts a new user. Names are unique across every lifecycle state;
// a taken name conflicts even while the holder sits in the trash bin or is
// being erased.
func (s *userStore) Create(ctx context.Context, user *model.User) error {
	existing, err := s.GetByName(ctx, user.Name, model.RemovalAll)
	if err != nil && !apierr.IsCode(err, apierr.ErrUserNotFound.Code) {
		return err
	}
	if existing != nil {
		return apierr.ErrUserExists
	}
	user.Kind = model.KindUser
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, user.ID, user)
	if err != nil {
		return err
	}
	user.Rev = rev
	return nil
}

func (s *userStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	if err := s.svc.get(ctx, id, &user, apierr.ErrUserNotFound); err != nil {
		return nil, err
	}
	if user.Kind != model.KindUser {
		return nil, apierr.ErrUserNotFound
	}
	return &user, nil
}

func (s *userStore) GetByName(ctx context.Context, name string, state model.RemovalState) (*model.User, error) {
	sel := selectorFor(model.KindUser, state, time.Now().UTC())
	sel["name"] = name
	var found *model.User
	err := s.svc.findAll(ctx, &mangoQuery{selector: sel, limit: 1}, func(rows *kivik.ResultSet) error {
		var user model.User
		if err := rows.ScanDoc(&user); err != nil {
			return err
		}
		found = &user
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, apierr.ErrUserNotFound
	}
	return found, nil
}

func (s *userStore) List(ctx context.Context, state model.RemovalState, page Page) ([]model.User, error) {
	q := &mangoQuery{
		selector: selectorFor(model.KindUser, state, time.Now().UTC()),
		sort:     sortByName,
		limit:    page.limit(),
		skip:     page.skip(),
	}
	users := []model.User{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var user model.User
		if err := rows.ScanDoc(&user); err != nil {
			return err
		}
		users = append(users, user)
		return nil
	})
	return users, err
}

func (s *userStore) Count(ctx context.Context, state model.RemovalState) (int, error) {
	return s.svc.count(ctx, selectorFor(model.KindUser, state, time.Now().UTC()))
}

func (s *userStore) Update(ctx context.Context, user *model.User) error {
	rev, err := s.svc.put(ctx, user.ID, user)
	if err != nil {
		return err
	}
	user.Rev = rev
	return nil
}

func (s *userStore) Erase(ctx context.Context, user *model.User) error {
	return s.svc.delete(ctx, user.ID, user.Rev)
}

func (s *userStore) ListErasing(ctx context.Context) ([]model.User, error) {
	q := &mangoQuery{selector: selectorFor(model.KindUser, model.RemovalErasing, time.Now().UTC())}
	users := []model.User{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var user model.User
		if err := rows.ScanDoc(&user); err != nil {
			return err
		}
		users = append(users, user)
		return nil
	})
	return users, err
}
