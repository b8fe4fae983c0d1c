// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	for in, want := range map[string]string{
		"vacances été.mp4":     "vacances_ete.mp4",
		"../../etc/passwd":     "passwd",
		`C:\Users\me\clip.MOV`: "clip.MOV",
		"   ":                  "upload",
		"..":                   "upload",
		"a  b__c.webm":         "a_b_c.webm",
		"名前.mkv":               "mkv",
		".hidden.mp4":          "hidden.mp4",
		"ﬁlm.mp4":              "film.mp4",
	} {
		assert.Equal(t, want, SanitizeFilename(in), in)
	}
}

func TestExt(t *testing.T) {
	assert.Equal(t, "mov", Ext("Clip.MOV"))
	assert.Equal(t, "", Ext("noext"))
}

func TestLocal_PutAvoidsCollisions(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "/media/")
	require.NoError(t, err)
	ctx := context.Background()

	var keys []string
	for range 3 {
		obj, err := l.Put(ctx, "clip.mp4", strings.NewReader("data"))
		require.NoError(t, err)
		assert.Equal(t, int64(4), obj.Size)
		assert.Equal(t, "/media/"+obj.Key, obj.URL)
		keys = append(keys, obj.Key)
	}
	assert.Equal(t, []string{"clip.mp4", "clip-1.mp4", "clip-2.mp4"}, keys)
}

func TestLocal_ConcurrentPutsGetDistinctKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := l.Put(context.Background(), "same.mp4", strings.NewReader("x"))
			assert.NoError(t, err)
			mu.Lock()
			seen[obj.Key] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 10)
}

func TestLocal_OpenLocalPathDelete(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)
	ctx := context.Background()

	obj, err := l.Put(ctx, "a.mp4", strings.NewReader("payload"))
	require.NoError(t, err)

	rc, err := l.Open(ctx, obj.Key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	assert.Equal(t, "payload", string(data))

	p, cleanup, err := l.LocalPath(ctx, obj.Key)
	require.NoError(t, err)
	cleanup()
	assert.FileExists(t, p, "local originals are not temporary")

	require.NoError(t, l.Delete(ctx, obj.Key))
	require.NoError(t, l.Delete(ctx, obj.Key))
	_, err = l.Open(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = l.LocalPath(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocal_RejectsPathKeys(t *testing.T) {
	l, err := NewLocal(t.TempDir(), "/media")
	require.NoError(t, err)

	_, err = l.Open(context.Background(), "../secret")
	assert.Error(t, err)
	_, _, err = l.LocalPath(context.Background(), "")
	assert.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	failPut error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.failPut != nil {
		return nil, f.failPut
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	f.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	s := NewS3WithClient(fake, S3Config{Bucket: "videos", Region: "eu-west-3", TempDir: t.TempDir()})
	ctx := context.Background()

	obj, err := s.Put(ctx, "Mon Film.mov", strings.NewReader("moov"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(obj.Key, "originals/"))
	assert.True(t, strings.HasSuffix(obj.Key, "-Mon_Film.mov"))
	assert.Equal(t, int64(4), obj.Size)
	assert.Equal(t, "https://videos.s3.eu-west-3.amazonaws.com/"+obj.Key, obj.URL)
	assert.Equal(t, "video/quicktime", fake.types[obj.Key])

	p, cleanup, err := s.LocalPath(ctx, obj.Key)
	require.NoError(t, err)
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "moov", string(data))
	assert.Equal(t, ".mov", filepath.Ext(p))
	cleanup()
	assert.NoFileExists(t, p)

	require.NoError(t, s.Delete(ctx, obj.Key))
	_, err = s.Open(ctx, obj.Key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3_SeekableBodySize(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "upload")
	require.NoError(t, err)
	_, err = f.WriteString("0123456789")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	s := NewS3WithClient(newFakeS3(), S3Config{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"})
	obj, err := s.Put(context.Background(), "x.mp4", f)
	require.NoError(t, err)
	assert.Equal(t, int64(10), obj.Size)
	assert.Equal(t, "https://cdn.example.com/"+obj.Key, obj.URL)
}

func TestS3_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.failPut = errors.New("access denied")
	s := NewS3WithClient(fake, S3Config{Bucket: "b"})

	_, err := s.Put(context.Background(), "x.mp4", strings.NewReader("x"))
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3_RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{})
	assert.Error(t, err)
}
