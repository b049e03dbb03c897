package db

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
)

type sessionStore struct {
	svc *Service
}

func (s *sessionStore) Put(ctx context.Context, session *model.Session) error {
	session.Kind = model.KindSession
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, session.ID, session)
	if err != nil {
		return err
	}
	session.Rev = rev
	return nil
}

func (s *sessionStore) Get(ctx context.Context, id string) (*model.Session, error) {
	var session model.Session
	if err := s.svc.get(ctx, id, &session, apierr.ErrSessionNotFound); err != nil {
		return nil, err
	}
	if session.Kind != model.KindSession {
		return nil, apierr.ErrSessionNotFound
	}
	return &session, nil
}

func (s *sessionStore) Delete(ctx context.Context, id string) error {
	session, err := s.Get(ctx, id)
	if err != nil {
		if apierr.IsCode(err, apierr.ErrSessionNotFound.Code) {
			return nil
		}
		return err
	}
	return s.svc.delete(ctx, session.ID, session.Rev)
}

func (s *sessionStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return s.deleteExpiredKind(ctx, model.KindSession, now)
}

func (s *sessionStore) deleteExpiredKind(ctx context.Context, kind string, now time.Time) (int, error) {
	sel := map[string]interface{}{
		"kind":    kind,
		"expires": map[string]interface{}{"$lte": common.FormatTime(now)},
	}
	type docRef struct {
		ID  string `json:"_id"`
		Rev string `json:"_rev"`
	}
	refs := []docRef{}
	err := s.svc.findAll(ctx, &mangoQuery{selector: sel}, func(rows *kivik.ResultSet) error {
		var ref docRef
		if err := rows.ScanDoc(&ref); err != nil {
			return err
		}
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, ref := range refs {
		if err := s.svc.delete(ctx, ref.ID, ref.Rev); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

type lockoutStore struct {
	svc *Service
}

func lockoutID(username, nonce string) string {
	return "lockout:" + username + ":" + nonce
}

// Upsert writes a lockout row keyed by (username, nonce), replacing any
// previous row for the pair.
func (s *lockoutStore) Upsert(ctx context.Context, lockout *model.Lockout) error {
	lockout.Kind = model.KindLockout
	lockout.ID = lockoutID(lockout.Username, lockout.Nonce)
	existing, err := s.Get(ctx, lockout.Username, lockout.Nonce)
	if err == nil && existing != nil {
		lockout.Rev = existing.Rev
	}
	rev, err := s.svc.put(ctx, lockout.ID, lockout)
	if err != nil {
		return err
	}
	lockout.Rev = rev
	return nil
}

// Get returns the lockout row for a device pair, or nil when none exists.
func (s *lockoutStore) Get(ctx context.Context, username, nonce string) (*model.Lockout, error) {
	var lockout model.Lockout
	err := s.svc.get(ctx, lockoutID(username, nonce), &lockout, apierr.ErrSessionNotFound)
	if apierr.IsCode(err, apierr.ErrSessionNotFound.Code) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lockout, nil
}

func (s *lockoutStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	sessions := sessionStore{s.svc}
	return sessions.deleteExpiredKind(ctx, model.KindLockout, now)
}

type unsentStore struct {
	svc *Service
}

func (s *unsentStore) Add(ctx context.Context, msg *model.UnsentMessage) error {
	msg.Kind = model.KindUnsentMessage
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	rev, err := s.svc.put(ctx, msg.ID, msg)
	if err != nil {
		return err
	}
	msg.Rev = rev
	return nil
}

func (s *unsentStore) List(ctx context.Context, limit int) ([]model.UnsentMessage, error) {
	q := &mangoQuery{
		selector: map[string]interface{}{"kind": model.KindUnsentMessage},
		limit:    limit,
	}
	msgs := []model.UnsentMessage{}
	err := s.svc.findAll(ctx, q, func(rows *kivik.ResultSet) error {
		var msg model.UnsentMessage
		if err := rows.ScanDoc(&msg); err != nil {
			return err
		}
		msgs = append(msgs, msg)
		return nil
	})
	return msgs, err
}

func (s *unsentStore) Delete(ctx context.Context, msg *model.UnsentMessage) error {
	return s.svc.delete(ctx, msg.ID, msg.Rev)
}
