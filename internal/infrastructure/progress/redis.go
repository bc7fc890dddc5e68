package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const DefaultSnapshotTTL = 24 * time.Hour

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Publisher pushes job progress and failure notifications over Redis pub/sub
// and keeps the latest progress snapshot per job.
type Publisher struct {
	client redisClient
	ttl    time.Duration
}

func NewPublisher(client redisClient, snapshotTTL time.Duration) *Publisher {
	if snapshotTTL <= 0 {
		snapshotTTL = DefaultSnapshotTTL
	}
	return &Publisher{client: client, ttl: snapshotTTL}
}

func ProgressChannel(jobID string) string {
	return "import:progress:" + jobID
}

func NotificationChannel(userID string) string {
	return "import:notifications:" + userID
}

func snapshotKey(jobID string) string {
	return "import:progress:" + jobID + ":latest"
}

func (p *Publisher) PublishProgress(ctx context.Context, jobID string, progress domain.Progress) error {
	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("encode progress: %w", err)
	}
	if err := p.client.Set(ctx, snapshotKey(jobID), payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("store progress snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, ProgressChannel(jobID), payload).Err(); err != nil {
		return fmt.Errorf("publish progress: %w", err)
	}
	return nil
}

// Snapshot returns the last published progress of a job.
func (p *Publisher) Snapshot(ctx context.Context, jobID string) (domain.Progress, bool, error) {
	raw, err := p.client.Get(ctx, snapshotKey(jobID)).Bytes()
	if err == redis.Nil {
		return domain.Progress{}, false, nil
	}
	if err != nil {
		return domain.Progress{}, false, fmt.Errorf("load progress snapshot: %w", err)
	}
	var progress domain.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		return domain.Progress{}, false, fmt.Errorf("decode progress snapshot: %w", err)
	}
	return progress, true, nil
}

type failureNotification struct {
	Type         string `json:"type"`
	JobID        string `json:"jobId"`
	FileName     string `json:"fileName"`
	ErrorMessage string `json:"errorMessage"`
}

// NotifyJobFailed tells the job creator the import failed.
func (p *Publisher) NotifyJobFailed(ctx context.Context, job domain.ImportJob) error {
	if job.CreatorID == "" {
		return nil
	}
	payload, err := json.Marshal(failureNotification{
		Type:         "import_failed",
		JobID:        job.ID,
		FileName:     job.FileName,
		ErrorMessage: job.ErrorMessage,
	})
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, NotificationChannel(job.CreatorID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
