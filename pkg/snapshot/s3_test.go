package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	objects map[string][]byte
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "bucket", "snapshots/")
	ctx := context.Background()

	if err := store.Save(ctx, "sess-9", []byte("tree")); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, ok := fake.objects["snapshots/sess-9"]; !ok {
		t.Error("object not written under prefix")
	}

	data, err := store.Load(ctx, "sess-9")
	if err != nil || string(data) != "tree" {
		t.Fatalf("Load = %q, %v", data, err)
	}

	if err := store.Delete(ctx, "sess-9"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load(ctx, "sess-9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete = %v, want ErrNotFound", err)
	}
}
