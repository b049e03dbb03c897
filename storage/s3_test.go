package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/model"
)

func newTestStore() (*ObjectStore, *MockS3Client) {
	client := NewMockS3Client()
	client.Buckets["artifacts"] = true
	return NewObjectStoreWithClient(client, "artifacts"), client
}

func TestArtifactKeys(t *testing.T) {
	assert.Equal(t, "fuzzers/fz-1/revisions/rev-1/binaries.tar.gz", ArtifactKey("fz-1", "rev-1", model.UploadBinaries))
	assert.Equal(t, "fuzzers/fz-1/revisions/rev-1/seeds.tar.gz", ArtifactKey("fz-1", "rev-1", model.UploadSeeds))
	assert.Equal(t, "fuzzers/fz-1/revisions/rev-1/config.json", ArtifactKey("fz-1", "rev-1", model.UploadConfig))
	assert.Equal(t, "fuzzers/fz-1/revisions/rev-1/corpus/", CorpusPrefix("fz-1", "rev-1"))
}

func TestUploadWithinLimit(t *testing.T) {
	store, client := newTestStore()
	err := store.Upload(context.Background(), "k", strings.NewReader("payload"), 1024)
	require.NoError(t, err)
	assert.Equal(t, "payload", client.Objects["k"])
}

func TestUploadOverLimit(t *testing.T) {
	store, client := newTestStore()
	err := store.Upload(context.Background(), "k", strings.NewReader(strings.Repeat("x", 100)), 10)
	assert.True(t, apierr.IsCode(err, apierr.ErrFileTooLarge.Code) || err == apierr.ErrFileTooLarge)
	assert.NotContains(t, client.Objects, "k")
}

func TestDownload(t *testing.T) {
	store, client := newTestStore()
	client.Objects["k"] = "content"

	body, size, err := store.Download(context.Background(), "k")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.EqualValues(t, 7, size)

	_, _, err = store.Download(context.Background(), "missing")
	assert.True(t, apierr.IsCode(err, apierr.ErrFileNotFound.Code))
}

func TestCopyPrefix(t *testing.T) {
	store, client := newTestStore()

	err := store.CopyPrefix(context.Background(), "src/", "dst/")
	assert.True(t, apierr.IsCode(err, apierr.ErrNoCorpusFound.Code))

	client.Objects["src/a"] = "A"
	client.Objects["src/b"] = "B"
	require.NoError(t, store.CopyPrefix(context.Background(), "src/", "dst/"))
	assert.Equal(t, "A", client.Objects["dst/a"])
	assert.Equal(t, "B", client.Objects["dst/b"])
}

func TestCopyPrefixSpansListingPages(t *testing.T) {
	store, client := newTestStore()
	client.PageSize = 2
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		client.Objects["src/"+name] = name
	}

	require.NoError(t, store.CopyPrefix(context.Background(), "src/", "dst/"))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		assert.Equal(t, name, client.Objects["dst/"+name])
	}
}

func TestDeletePrefix(t *testing.T) {
	store, client := newTestStore()
	client.Objects["fuzzers/fz-1/revisions/rev-1/binaries.tar.gz"] = "bin"
	client.Objects["fuzzers/fz-1/revisions/rev-1/corpus/input-1"] = "in"
	client.Objects["fuzzers/fz-2/revisions/rev-9/binaries.tar.gz"] = "other"

	require.NoError(t, store.DeletePrefix(context.Background(), FuzzerPrefix("fz-1")))
	assert.Len(t, client.Objects, 1)
	assert.Contains(t, client.Objects, "fuzzers/fz-2/revisions/rev-9/binaries.tar.gz")
}

func TestHasObjects(t *testing.T) {
	store, client := newTestStore()
	ok, err := store.HasObjects(context.Background(), "corpus/")
	require.NoError(t, err)
	assert.False(t, ok)

	client.Objects["corpus/x"] = "x"
	ok, err = store.HasObjects(context.Background(), "corpus/")
	require.NoError(t, err)
	assert.True(t, ok)
}
