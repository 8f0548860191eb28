package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	origUUID, origNow := newUUID, now
	t.Cleanup(func() { newUUID, now = origUUID, origNow })
	newUUID = func() string { return "id" }
	now = func() time.Time { return time.Date(2024, 5, 17, 10, 0, 0, 0, time.UTC) }

	assert.Equal(t, "islands/2024/05/17/id-beach.jpg", NewKey("islands", "beach.jpg"))
	assert.Equal(t, "islands/2024/05/17/id-beach.jpg", NewKey("/islands/", "../../beach.jpg"))
	assert.Equal(t, "islands/2024/05/17/id-x.png", NewKey("islands", `C:\tmp\x.png`))
	assert.Equal(t, "2024/05/17/id", NewKey("", ""))
}

func TestSameAsset(t *testing.T) {
	a := &AssetRef{URL: "memory://a"}
	assert.True(t, SameAsset(nil, nil))
	assert.False(t, SameAsset(a, nil))
	assert.False(t, SameAsset(nil, a))
	assert.True(t, SameAsset(a, &AssetRef{URL: "memory://a", Name: "renamed"}))
	assert.False(t, SameAsset(a, &AssetRef{URL: "memory://b"}))
}

func TestAssetRefClone(t *testing.T) {
	var nilRef *AssetRef
	assert.Nil(t, nilRef.Clone())

	a := &AssetRef{Name: "a.jpg", URL: "memory://a"}
	c := a.Clone()
	c.Name = "b.jpg"
	assert.Equal(t, "a.jpg", a.Name)
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	data := []byte("payload")
	ref, err := s.Put(ctx, "k/1", data, "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "memory://k/1", ref.URL)
	assert.EqualValues(t, len(data), ref.Size)

	data[0] = 'X'
	got, err := s.Get(ctx, "k/1")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	require.NoError(t, s.Delete(ctx, "k/1"))
	_, err = s.Get(ctx, "k/1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
	assert.NoError(t, s.Delete(ctx, "k/1"), "deleting a missing key is fine")
}

func TestMemoryStoreRejectsEmptyKey(t *testing.T) {
	_, err := NewMemoryStore().Put(context.Background(), "", nil, "")
	assert.Error(t, err)
}

type fakeS3 struct {
	objects   map[string][]byte
	putErr    error
	deleteErr error
	lastPut   *s3.PutObjectInput
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	b, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Key)] = b
	f.lastPut = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func withFakeS3(t *testing.T, fake *fakeS3, check func(*s3.Options)) {
	t.Helper()
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		return aws.Config{Region: lo.Region, Credentials: lo.Credentials}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) s3API {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		if check != nil {
			check(&o)
		}
		return fake
	}
}

func TestS3StorePutGet(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	withFakeS3(t, fake, func(o *s3.Options) {
		assert.Equal(t, "http://127.0.0.1:9000", aws.ToString(o.BaseEndpoint))
		assert.True(t, o.UsePathStyle)
	})

	st, err := NewS3Store(context.Background(), S3Config{
		Bucket:          "islands",
		Region:          "us-east-1",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Endpoint:        "http://127.0.0.1:9000",
		UsePathStyle:    true,
	})
	require.NoError(t, err)

	ref, err := st.Put(context.Background(), "a/b.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/islands/a/b.jpg", ref.URL)
	assert.Equal(t, "image/jpeg", aws.ToString(fake.lastPut.ContentType))
	assert.EqualValues(t, 4, aws.ToInt64(fake.lastPut.ContentLength))

	got, err := st.Get(context.Background(), "a/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg"), got)

	_, err = st.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, st.Delete(context.Background(), "a/b.jpg"))
	_, err = st.Get(context.Background(), "a/b.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	fake.deleteErr = errors.New("access denied")
	assert.ErrorIs(t, st.Delete(context.Background(), "a/c.jpg"), fake.deleteErr)
}

func TestS3StorePutError(t *testing.T) {
	boom := errors.New("boom")
	withFakeS3(t, &fakeS3{objects: map[string][]byte{}, putErr: boom}, nil)

	st, err := NewS3Store(context.Background(), S3Config{Bucket: "b", Region: "eu-west-1"})
	require.NoError(t, err)

	_, err = st.Put(context.Background(), "k", []byte("x"), "image/png")
	assert.ErrorIs(t, err, boom)
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestPublicBaseURL(t *testing.T) {
	cases := []struct {
		name string
		cfg  S3Config
		want string
	}{
		{"explicit", S3Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}, "https://cdn.example.com"},
		{"path style", S3Config{Bucket: "b", Endpoint: "http://minio:9000", UsePathStyle: true}, "http://minio:9000/b"},
		{"virtual host endpoint", S3Config{Bucket: "b", Endpoint: "https://s3.example.com"}, "https://b.s3.example.com"},
		{"aws", S3Config{Bucket: "b", Region: "eu-west-1"}, "https://b.s3.eu-west-1.amazonaws.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, publicBaseURL(tc.cfg))
		})
	}
}
