// Package db implements the gateway's persistence layer on CouchDB. All
// entities live in a single database and carry a kind discriminator field;
// queries go through Mango selectors backed by the indexes EnsureIndexes
// creates at startup.
package db

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/sirupsen/logrus"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/config"
)

// Service wraps a kivik client bound to the gateway database.
type Service struct {
	client   *kivik.Client
	database *kivik.DB
	name     string
}

// New connects to CouchDB, creates the database when missing, and returns a
// bound service.
func New(ctx context.Context, cfg config.DatabaseConfig) (*Service, error) {
	client, err := kivik.New("couch", cfg.BuildURL())
	if err != nil {
		return nil, fmt.Errorf("connecting to couchdb: %w", err)
	}
	exists, err := client.DBExists(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("checking database %q: %w", cfg.Database, err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Database); err != nil {
			// Racing replicas may both see the database missing.
			if kivik.HTTPStatus(err) != http.StatusPreconditionFailed {
				return nil, fmt.Errorf("creating database %q: %w", cfg.Database, err)
			}
		}
		common.Logger.WithField("database", cfg.Database).Info("created database")
	}
	return &Service{
		client:   client,
		database: client.DB(cfg.Database),
		name:     cfg.Database,
	}, nil
}

// Close releases the underlying client.
func (s *Service) Close() error {
	return s.client.Close()
}

// Ping verifies the CouchDB node is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if _, err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("pinging couchdb: %w", err)
	}
	return nil
}

// Reset destroys and recreates the database, then rebuilds indexes. Only
// reachable through the test-reset endpoint outside production.
func (s *Service) Reset(ctx context.Context) error {
	if err := s.client.DestroyDB(ctx, s.name); err != nil {
		if kivik.HTTPStatus(err) != http.StatusNotFound {
			return fmt.Errorf("destroying database %q: %w", s.name, err)
		}
	}
	if err := s.client.CreateDB(ctx, s.name); err != nil {
		return fmt.Errorf("recreating database %q: %w", s.name, err)
	}
	s.database = s.client.DB(s.name)
	common.Logger.WithField("database", s.name).Warn("database reset")
	return s.EnsureIndexes(ctx)
}

// EnsureIndexes creates the Mango indexes the stores query against. Index
// creation is idempotent.
func (s *Service) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		name   string
		fields []string
	}{
		{"idx-kind", []string{"kind"}},
		{"idx-kind-name", []string{"kind", "name"}},
		{"idx-kind-owner", []string{"kind", "owner_id"}},
		{"idx-kind-project", []string{"kind", "project_id"}},
		{"idx-kind-fuzzer", []string{"kind", "fuzzer_id"}},
		{"idx-kind-fuzzer-created", []string{"kind", "fuzzer_id", "created"}},
		{"idx-kind-fuzzer-date", []string{"kind", "fuzzer_id", "date"}},
		{"idx-kind-fuzzer-hash", []string{"kind", "fuzzer_rev", "input_hash"}},
		{"idx-kind-username", []string{"kind", "username", "nonce"}},
		{"idx-kind-expires", []string{"kind", "expires"}},
		{"idx-kind-erasure", []string{"kind", "erasure_date"}},
	}
	for _, idx := range indexes {
		def := map[string]interface{}{
			"index": map[string]interface{}{"fields": idx.fields},
			"name":  idx.name,
			"type":  "json",
		}
		if err := s.database.CreateIndex(ctx, "", idx.name, def); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}
	common.Logger.WithFields(logrus.Fields{
		"database": s.name,
		"indexes":  len(indexes),
	}).Debug("ensured mango indexes")
	return nil
}

// put writes a document and returns the new revision. A CouchDB 409 becomes
// the gateway's concurrent-update error.
func (s *Service) put(ctx context.Context, id string, doc interface{}) (string, error) {
	rev, err := s.database.Put(ctx, id, doc)
	if err != nil {
		return "", s.mapErr(err)
	}
	return rev, nil
}

// get loads a document into out. notFound is returned for a missing id so
// callers surface the entity-specific code.
func (s *Service) get(ctx context.Context, id string, out interface{}, notFound *apierr.Error) error {
	row := s.database.Get(ctx, id)
	if err := row.Err(); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return notFound
		}
		return s.mapErr(err)
	}
	if err := row.ScanDoc(out); err != nil {
		return fmt.Errorf("decoding document %q: %w", id, err)
	}
	return nil
}

// delete removes a document by id and revision.
func (s *Service) delete(ctx context.Context, id, rev string) error {
	if _, err := s.database.Delete(ctx, id, rev); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil
		}
		return s.mapErr(err)
	}
	return nil
}

func (s *Service) mapErr(err error) error {
	switch kivik.HTTPStatus(err) {
	case http.StatusConflict:
		return apierr.ErrConcurrentUpdate
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("couchdb rejected credentials: %w", err)
	}
	return err
}
