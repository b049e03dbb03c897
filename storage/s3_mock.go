package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// MockS3Client is an in-memory S3Client for tests. A non-zero PageSize caps
// listing responses so pagination gets exercised.
type MockS3Client struct {
	mu       sync.Mutex
	Objects  map[string]string
	Buckets  map[string]bool
	uploads  map[string]map[int32]string
	PageSize int
	Err      error
}

// NewMockS3Client creates an empty mock client.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		Objects: make(map[string]string),
		Buckets: make(map[string]bool),
		uploads: make(map[string]map[int32]string),
	}
}

func (m *MockS3Client) HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Buckets[aws.ToString(params.Bucket)] {
		return &s3.HeadBucketOutput{}, nil
	}
	return nil, &types.NoSuchBucket{}
}

func (m *MockS3Client) CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	m.Buckets[aws.ToString(params.Bucket)] = true
	return &s3.CreateBucketOutput{}, nil
}

func (m *MockS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[aws.ToString(params.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (m *MockS3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	content, ok := m.Objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(content)),
		ContentLength: aws.Int64(int64(len(content))),
	}, nil
}

func (m *MockS3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	content, ok := m.Objects[aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(content)))}, nil
}

func (m *MockS3Client) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	prefix := aws.ToString(params.Prefix)
	var keys []string
	for key := range m.Objects {
		if prefix == "" || strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	start := 0
	if token := aws.ToString(params.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token)
		if start < len(keys) && keys[start] == token {
			start++
		}
	}
	end := len(keys)
	if m.PageSize > 0 && start+m.PageSize < end {
		end = start + m.PageSize
	}

	contents := make([]types.Object, 0, end-start)
	for _, key := range keys[start:end] {
		contents = append(contents, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.Objects[key]))),
		})
	}
	out := &s3.ListObjectsV2Output{
		Contents:    contents,
		IsTruncated: aws.Bool(end < len(keys)),
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func (m *MockS3Client) CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	src := aws.ToString(params.CopySource)
	// CopySource is "bucket/key".
	if i := strings.Index(src, "/"); i >= 0 {
		src = src[i+1:]
	}
	content, ok := m.Objects[src]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	m.Objects[aws.ToString(params.Key)] = content
	return &s3.CopyObjectOutput{}, nil
}

func (m *MockS3Client) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	delete(m.Objects, aws.ToString(params.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *MockS3Client) CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	id := aws.ToString(params.Key) + "#upload"
	m.uploads[id] = make(map[int32]string)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String(id)}, nil
}

func (m *MockS3Client) UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	parts, ok := m.uploads[aws.ToString(params.UploadId)]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	num := aws.ToInt32(params.PartNumber)
	parts[num] = string(data)
	etag := fmt.Sprintf("part-%d", num)
	return &s3.UploadPartOutput{ETag: aws.String(etag)}, nil
}

func (m *MockS3Client) CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	id := aws.ToString(params.UploadId)
	parts, ok := m.uploads[id]
	if !ok {
		return nil, &types.NoSuchUpload{}
	}
	nums := make([]int32, 0, len(parts))
	for n := range parts {
		nums = append(nums, n)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	var content strings.Builder
	for _, n := range nums {
		content.WriteString(parts[n])
	}
	m.Objects[aws.ToString(params.Key)] = content.String()
	delete(m.uploads, id)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func (m *MockS3Client) AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.uploads, aws.ToString(params.UploadId))
	return &s3.AbortMultipartUploadOutput{}, nil
}
