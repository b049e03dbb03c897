package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/fuzzbed/gateway/model"
)

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		name string
		num  int
		size int
		want Page
	}{
		{"Defaults", 0, 0, Page{Num: 0, Size: 100}},
		{"ClampLow", 2, 3, Page{Num: 2, Size: 10}},
		{"ClampHigh", 0, 5000, Page{Num: 0, Size: 200}},
		{"NegativeNum", -4, 50, Page{Num: 0, Size: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePage(tt.num, tt.size))
		})
	}
}

func TestPageWindow(t *testing.T) {
	p := NormalizePage(3, 50)
	assert.Equal(t, 50, p.limit())
	assert.Equal(t, 150, p.skip())
}

func TestSelectorFor(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Present", func(t *testing.T) {
		sel := selectorFor(model.KindFuzzer, model.RemovalPresent, now)
		assert.Equal(t, model.KindFuzzer, sel["kind"])
		assert.Equal(t, map[string]interface{}{"$exists": false}, sel["erasure_date"])
	})

	t.Run("TrashBin", func(t *testing.T) {
		sel := selectorFor(model.KindFuzzer, model.RemovalTrashBin, now)
		assert.Equal(t, map[string]interface{}{"$gt": "2026-05-01T12:00:00Z"}, sel["erasure_date"])
	})

	t.Run("Erasing", func(t *testing.T) {
		sel := selectorFor(model.KindFuzzer, model.RemovalErasing, now)
		assert.Equal(t, map[string]interface{}{"$lte": "2026-05-01T12:00:00Z"}, sel["erasure_date"])
	})

	t.Run("Visible", func(t *testing.T) {
		sel := selectorFor(model.KindFuzzer, model.RemovalVisible, now)
		assert.NotContains(t, sel, "erasure_date")
		assert.Len(t, sel["$or"], 2)
	})

	t.Run("All", func(t *testing.T) {
		sel := selectorFor(model.KindFuzzer, model.RemovalAll, now)
		assert.Equal(t, map[string]interface{}{"kind": model.KindFuzzer}, sel)
	})
}

func TestMangoQueryParams(t *testing.T) {
	q := &mangoQuery{sort: sortByCreated, limit: 20, skip: 40}
	params := q.params()
	assert.Equal(t, 20, params["limit"])
	assert.Equal(t, 40, params["skip"])
	assert.Equal(t, sortByCreated, params["sort"])

	empty := &mangoQuery{}
	assert.Empty(t, empty.params())
}
