// Package storage holds revision artifacts and corpora in an S3-compatible
// object store. Keys are deterministic per revision, so erasure can delete
// by prefix and the scheduler can locate artifacts without a lookup table.
package storage

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/fuzzbed/gateway/apierr"
	"github.com/fuzzbed/gateway/common"
	"github.com/fuzzbed/gateway/config"
	"github.com/fuzzbed/gateway/model"
)

// ObjectStore reads and writes revision artifacts and corpora.
type ObjectStore struct {
	client   S3Client
	uploader *manager.Uploader
	bucket   string
}

// NewObjectStore builds a store against an S3-compatible endpoint. Path-style
// addressing is forced for MinIO compatibility.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (*ObjectStore, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{
					URL:               cfg.URL,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			})),
	)
	if err != nil {
		return nil, fmt.Errorf("loading s3 configuration: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		o.HTTPClient = &http.Client{}
	})
	return NewObjectStoreWithClient(client, cfg.Bucket), nil
}

// NewObjectStoreWithClient wires an explicit client, used by tests.
func NewObjectStoreWithClient(client S3Client, bucket string) *ObjectStore {
	return &ObjectStore{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
	}
}

// EnsureBucket creates the bucket when missing.
func (o *ObjectStore) EnsureBucket(ctx context.Context) error {
	_, err := o.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)})
	if err == nil {
		return nil
	}
	if _, err := o.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(o.bucket)}); err != nil {
		return fmt.Errorf("creating bucket %q: %w", o.bucket, err)
	}
	common.Logger.WithField("bucket", o.bucket).Info("created storage bucket")
	return nil
}

// Ping reports bucket reachability for health checks.
func (o *ObjectStore) Ping(ctx context.Context) error {
	_, err := o.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(o.bucket)})
	return err
}

// ArtifactKey names a revision artifact object.
func ArtifactKey(fuzzerID, revisionID string, kind model.UploadKind) string {
	name := string(kind) + ".tar.gz"
	if kind == model.UploadConfig {
		name = "config.json"
	}
	return "fuzzers/" + fuzzerID + "/revisions/" + revisionID + "/" + name
}

// CorpusPrefix names the corpus directory of a revision.
func CorpusPrefix(fuzzerID, revisionID string) string {
	return "fuzzers/" + fuzzerID + "/revisions/" + revisionID + "/corpus/"
}

// RevisionPrefix covers every object a revision owns.
func RevisionPrefix(fuzzerID, revisionID string) string {
	return "fuzzers/" + fuzzerID + "/revisions/" + revisionID + "/"
}

// FuzzerPrefix covers every object a fuzzer owns.
func FuzzerPrefix(fuzzerID string) string {
	return "fuzzers/" + fuzzerID + "/"
}

// Upload streams body into key, refusing payloads above limit bytes. The
// stream is capped rather than buffered, so oversized uploads fail as soon
// as the limit is crossed.
func (o *ObjectStore) Upload(ctx context.Context, key string, body io.Reader, limit int64) error {
	capped := &cappedReader{r: body, remaining: limit}
	_, err := o.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
		Body:   capped,
	})
	if err != nil {
		if capped.overflowed {
			return apierr.ErrFileTooLarge
		}
		return fmt.Errorf("uploading %q: %w", key, err)
	}
	return nil
}

// Download opens an object for streaming. Missing objects surface as the
// file-not-found API error.
func (o *ObjectStore) Download(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, 0, apierr.ErrFileNotFound
		}
		return nil, 0, fmt.Errorf("downloading %q: %w", key, err)
	}
	size := int64(0)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

// Exists reports whether an object is present.
func (o *ObjectStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(o.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return false, nil
		}
		return false, fmt.Errorf("checking %q: %w", key, err)
	}
	return true, nil
}

// CopyPrefix server-side copies every object under srcPrefix to dstPrefix.
// An empty source reports the no-corpus error.
func (o *ObjectStore) CopyPrefix(ctx context.Context, srcPrefix, dstPrefix string) error {
	keys, err := o.listKeys(ctx, srcPrefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return apierr.ErrNoCorpusFound
	}
	for _, key := range keys {
		dst := dstPrefix + strings.TrimPrefix(key, srcPrefix)
		_, err := o.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(o.bucket),
			CopySource: aws.String(o.bucket + "/" + key),
			Key:        aws.String(dst),
		})
		if err != nil {
			return fmt.Errorf("copying %q to %q: %w", key, dst, err)
		}
	}
	return nil
}

// TarPrefix streams every object under prefix into w as a gzip tar archive.
// Entry names are the keys relative to prefix. An empty prefix reports the
// no-corpus error.
func (o *ObjectStore) TarPrefix(ctx context.Context, prefix string, w io.Writer) error {
	keys, err := o.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return apierr.ErrNoCorpusFound
	}
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, key := range keys {
		body, size, err := o.Download(ctx, key)
		if err != nil {
			return err
		}
		header := &tar.Header{
			Name: strings.TrimPrefix(key, prefix),
			Mode: 0o644,
			Size: size,
		}
		if err := tw.WriteHeader(header); err != nil {
			body.Close()
			return fmt.Errorf("writing tar header for %q: %w", key, err)
		}
		if _, err := io.Copy(tw, body); err != nil {
			body.Close()
			return fmt.Errorf("archiving %q: %w", key, err)
		}
		body.Close()
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

// HasObjects reports whether any object lives under prefix.
func (o *ObjectStore) HasObjects(ctx context.Context, prefix string) (bool, error) {
	keys, err := o.listKeys(ctx, prefix)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// DeletePrefix removes every object under prefix. Used by erasure.
func (o *ObjectStore) DeletePrefix(ctx context.Context, prefix string) error {
	keys, err := o.listKeys(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return fmt.Errorf("deleting %q: %w", key, err)
		}
	}
	return nil
}

// listKeys collects every key under prefix, following continuation tokens so
// corpora beyond one listing page are seen in full.
func (o *ObjectStore) listKeys(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(o.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(o.bucket),
		Prefix: aws.String(prefix),
	})
	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		for _, item := range page.Contents {
			keys = append(keys, *item.Key)
		}
	}
	return keys, nil
}

// cappedReader fails the stream once more than remaining bytes have been
// read.
type cappedReader struct {
	r          io.Reader
	remaining  int64
	overflowed bool
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.overflowed {
		return 0, apierr.ErrFileTooLarge
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.overflowed = true
		return n, apierr.ErrFileTooLarge
	}
	return n, err
}
