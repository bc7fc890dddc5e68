package progress

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

type published struct {
	channel string
	payload []byte
}

type fakeRedis struct {
	published []published
	values    map[string][]byte
	ttls      map[string]time.Duration
	setErr    error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published = append(f.published, published{channel: channel, payload: message.([]byte)})
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.values[key] = value.([]byte)
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	value, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(value), nil)
}

func TestPublisherPublishProgress(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	publisher := NewPublisher(client, time.Hour)
	ctx := context.Background()

	progress := domain.Progress{JobID: "job-1", Status: domain.StatusParsing, ProcessedRows: 500, TotalChunks: 3}
	require.NoError(t, publisher.PublishProgress(ctx, "job-1", progress))

	require.Len(t, client.published, 1)
	require.Equal(t, "import:progress:job-1", client.published[0].channel)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(client.published[0].payload, &decoded))
	require.Equal(t, "parsing", decoded["status"])
	require.EqualValues(t, 500, decoded["processedRows"])
	require.Equal(t, time.Hour, client.ttls["import:progress:job-1:latest"])

	snapshot, found, err := publisher.Snapshot(ctx, "job-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, progress, snapshot)

	_, found, err = publisher.Snapshot(ctx, "job-2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPublisherPublishProgressError(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	client.setErr = errors.New("connection refused")
	publisher := NewPublisher(client, 0)

	err := publisher.PublishProgress(context.Background(), "job-1", domain.Progress{JobID: "job-1"})
	require.ErrorContains(t, err, "connection refused")
	require.Empty(t, client.published)
}

func TestPublisherNotifyJobFailed(t *testing.T) {
	t.Parallel()

	client := newFakeRedis()
	publisher := NewPublisher(client, 0)

	job := domain.ImportJob{ID: "job-1", CreatorID: "user-7", FileName: "leads.csv", ErrorMessage: "corrupt file"}
	require.NoError(t, publisher.NotifyJobFailed(context.Background(), job))

	require.Len(t, client.published, 1)
	require.Equal(t, "import:notifications:user-7", client.published[0].channel)
	require.JSONEq(t, `{"type":"import_failed","jobId":"job-1","fileName":"leads.csv","errorMessage":"corrupt file"}`, string(client.published[0].payload))

	require.NoError(t, publisher.NotifyJobFailed(context.Background(), domain.ImportJob{ID: "job-2"}))
	require.Len(t, client.published, 1)
}
