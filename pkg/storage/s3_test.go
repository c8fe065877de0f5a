package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket. List results are split into pages of
// pageSize keys to drive the paginator.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	pageSize int
	getErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte), pageSize: 2}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	data, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	// Continuation token is the last key of the previous page.
	start := 0
	if token := aws.ToString(in.ContinuationToken); token != "" {
		start = sort.SearchStrings(keys, token) + 1
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end-1])
	}
	return out, nil
}

func TestS3Store(t *testing.T) {
	runObjectStoreTests(t, NewS3Store(newFakeS3(), "hatebu-galaxy"))
}

func TestS3Store_ListFollowsPages(t *testing.T) {
	fake := newFakeS3()
	store := NewS3Store(fake, "hatebu-galaxy")
	ctx := context.Background()

	for _, year := range []int{2019, 2020, 2021, 2022, 2023} {
		if err := store.Put(ctx, PartitionKey("alice", year), []byte("{}")); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	keys, err := store.List(ctx, UserPrefix("alice"))
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(keys) != 5 {
		t.Errorf("List() returned %d keys, want 5: %v", len(keys), keys)
	}
}

func TestS3Store_GetErrorIsNotNotFound(t *testing.T) {
	fake := newFakeS3()
	fake.getErr = errors.New("connection reset")
	store := NewS3Store(fake, "hatebu-galaxy")

	_, err := store.Get(context.Background(), "alice/2024.json")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want a non-NotFound error", err)
	}
}
