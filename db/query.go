package db

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kivik/kivik/v4"

	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/model"
)

// Pagination bounds. Sizes outside the window are clamped, never rejected.
const (
	pageSizeDefault = 100
	pageSizeMin     = 10
	pageSizeMax     = 200
)

// Page is a normalized pagination window.
type Page struct {
	Num  int
	Size int
}

// NormalizePage clamps raw pagination parameters into the supported window.
// Zero size selects the default.
func NormalizePage(num, size int) Page {
	if num < 0 {
		num = 0
	}
	switch {
	case size == 0:
		size = pageSizeDefault
	case size < pageSizeMin:
		size = pageSizeMin
	case size > pageSizeMax:
		size = pageSizeMax
	}
	return Page{Num: num, Size: size}
}

func (p Page) limit() int { return p.Size }
func (p Page) skip() int  { return p.Num * p.Size }

// mangoQuery is a CouchDB _find request.
type mangoQuery struct {
	selector map[string]interface{}
	sort     []map[string]string
	limit    int
	skip     int
}

func (q *mangoQuery) params() map[string]interface{} {
	params := map[string]interface{}{}
	if len(q.sort) > 0 {
		params["sort"] = q.sort
	}
	if q.limit > 0 {
		params["limit"] = q.limit
	}
	if q.skip > 0 {
		params["skip"] = q.skip
	}
	return params
}

// selectorFor builds the base Mango selector for a document kind, optionally
// narrowed by removal phase. The erasure_date field is absent on live
// documents, a future timestamp in the trash bin, and a past timestamp once
// erasure is due; timestamps compare lexicographically.
func selectorFor(kind string, state model.RemovalState, now time.Time) map[string]interface{} {
	sel := map[string]interface{}{"kind": kind}
	cutoff := common.FormatTime(now)
	switch state {
	case model.RemovalPresent:
		sel["erasure_date"] = map[string]interface{}{"$exists": false}
	case model.RemovalTrashBin:
		sel["erasure_date"] = map[string]interface{}{"$gt": cutoff}
	case model.RemovalErasing:
		sel["erasure_date"] = map[string]interface{}{"$lte": cutoff}
	case model.RemovalVisible:
		sel["$or"] = []map[string]interface{}{
			{"erasure_date": map[string]interface{}{"$exists": false}},
			{"erasure_date": map[string]interface{}{"$gt": cutoff}},
		}
	case model.RemovalAll:
	}
	return sel
}

// findAll runs a _find request and decodes every row through scan. scan
// receives the row and must call ScanDoc on its own target type.
func (s *Service) findAll(ctx context.Context, q *mangoQuery, scan func(*kivik.ResultSet) error) error {
	rows := s.database.Find(ctx, q.selector, kivik.Params(q.params()))
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("running mango query: %w", s.mapErr(err))
	}
	return nil
}

// count runs a _find request projected to _id and counts the rows. Mango has
// no server-side count, so the projection keeps the transfer small.
func (s *Service) count(ctx context.Context, selector map[string]interface{}) (int, error) {
	params := map[string]interface{}{
		"fields": []string{"_id"},
		"limit":  100000,
	}
	rows := s.database.Find(ctx, selector, kivik.Params(params))
	defer rows.Close()
	n := 0
	for rows.Next() {
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("counting documents: %w", s.mapErr(err))
	}
	return n, nil
}

var sortByCreated = []map[string]string{{"created": "desc"}}
var sortByName = []map[string]string{{"name": "asc"}}
