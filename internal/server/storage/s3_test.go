package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dmitrijs2005/audiokeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string][]byte
	buckets   map[string]bool
	putErr    error
	headErr   error
	createErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, buckets: map[string]bool{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	if in.ContentLength == nil || *in.ContentLength != int64(len(b)) {
		return nil, errors.New("content length mismatch")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(_ context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if !f.buckets[*in.Bucket] {
		return nil, &types.NotFound{}
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.buckets[*in.Bucket] = true
	return &s3.CreateBucketOutput{}, nil
}

func TestS3Storage_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	s := &S3Storage{client: fake, bucket: "audio"}
	ctx := context.Background()

	loc, n, err := s.Save(ctx, "k.mp3", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "k.mp3", loc)
	assert.EqualValues(t, 7, n)

	rc, err := s.Open(ctx, loc)
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "payload", string(b))

	require.NoError(t, s.Remove(ctx, loc))
	_, err = s.Open(ctx, loc)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestS3Storage_SaveErrors(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("s3 down")
	s := &S3Storage{client: fake, bucket: "audio"}

	_, _, err := s.Save(context.Background(), "k.mp3", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "put object")

	_, _, err = s.Save(context.Background(), "../k.mp3", strings.NewReader("x"))
	require.ErrorIs(t, err, common.ErrorBadRequest)
}

func TestS3Storage_EnsureReady(t *testing.T) {
	t.Run("creates missing bucket", func(t *testing.T) {
		fake := newFakeS3()
		s := &S3Storage{client: fake, bucket: "audio"}
		require.NoError(t, s.EnsureReady(context.Background()))
		assert.True(t, fake.buckets["audio"])
		// idempotent
		require.NoError(t, s.EnsureReady(context.Background()))
	})

	t.Run("already owned is fine", func(t *testing.T) {
		fake := newFakeS3()
		fake.createErr = &types.BucketAlreadyOwnedByYou{}
		s := &S3Storage{client: fake, bucket: "audio"}
		require.NoError(t, s.EnsureReady(context.Background()))
	})

	t.Run("head error surfaces", func(t *testing.T) {
		fake := newFakeS3()
		fake.headErr = errors.New("forbidden")
		s := &S3Storage{client: fake, bucket: "audio"}
		require.Error(t, s.EnsureReady(context.Background()))
	})
}

func TestNewS3Storage_UsesConfig(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNew
	})

	var gotOpts s3.Options
	fake := newFakeS3()
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		for _, fn := range optFns {
			fn(&gotOpts)
		}
		gotOpts.Region = cfg.Region
		return fake
	}

	s, err := NewS3Storage(context.Background(), S3Config{
		User: "u", Password: "p", Bucket: "audio", Region: "eu-west-1", BaseEndpoint: "http://minio:9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "audio", s.bucket)
	assert.Equal(t, "eu-west-1", gotOpts.Region)
	require.NotNil(t, gotOpts.BaseEndpoint)
	assert.Equal(t, "http://minio:9000", *gotOpts.BaseEndpoint)
	assert.True(t, gotOpts.UsePathStyle)
}

func TestNewS3Storage_ConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*config.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no config")
	}

	_, err := NewS3Storage(context.Background(), S3Config{})
	require.Error(t, err)
}
