package memory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingArchiver struct {
	name string
	err  error
	docs []Document
}

func (a *recordingArchiver) Name() string { return a.name }

func (a *recordingArchiver) Archive(_ context.Context, doc Document) error {
	if a.err != nil {
		return a.err
	}
	a.docs = append(a.docs, doc)
	return nil
}

func (a *recordingArchiver) Close() error { return nil }

func TestBackupOnceContinuesPastFailingArchiver(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordInteraction(ctx, "josh", "hi", "hello"))

	bad := &recordingArchiver{name: "bad", err: errors.New("offline")}
	good := &recordingArchiver{name: "good"}

	assert.Equal(t, 1, BackupOnce(ctx, s, nil, bad, good))
	require.Len(t, good.docs, 1)
	assert.Len(t, good.docs[0].Interactions, 1)
}

type fakePutter struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.body = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3ArchiverUploadsSnapshot(t *testing.T) {
	put := &fakePutter{}
	a := newS3Archiver(put, "navi-backups", "/home/kitchen/")
	a.now = func() time.Time { return time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC) }

	doc := Skeleton()
	doc.GlobalFacts = append(doc.GlobalFacts, FactRecord{Text: "two cats"})
	require.NoError(t, a.Archive(context.Background(), doc))

	require.NotNil(t, put.input)
	assert.Equal(t, "navi-backups", *put.input.Bucket)
	assert.Equal(t, "home/kitchen/navi-memory-20261016T080000Z.json", *put.input.Key)

	var got Document
	require.NoError(t, json.Unmarshal(put.body, &got))
	require.Len(t, got.GlobalFacts, 1)
	assert.Equal(t, "two cats", got.GlobalFacts[0].Text)
}

func TestNewArchiversEmptyConfig(t *testing.T) {
	as, err := NewArchivers(context.Background(), BackupConfig{}, nil)
	require.NoError(t, err)
	assert.Empty(t, as)
}
