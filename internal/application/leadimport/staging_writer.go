package leadimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	domain "github.com/mohammadpnp/lead-import/internal/domain/leadimport"
)

const checkpointVersion = 1

var errCorruptCheckpoint = errors.New("corrupt checkpoint")

// Checkpoint is the parse resume token stored opaquely on the job.
type Checkpoint struct {
	Version       int       `json:"version"`
	LastRowNumber int       `json:"lastRowNumber"`
	ValidCount    int64     `json:"validCount"`
	InvalidCount  int64     `json:"invalidCount"`
	Timestamp     time.Time `json:"timestamp"`
}

// DecodeCheckpoint returns ok=false for an empty token.
func DecodeCheckpoint(raw []byte) (Checkpoint, bool, error) {
	if len(raw) == 0 {
		return Checkpoint{}, false, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: %v", errCorruptCheckpoint, err)
	}
	if cp.Version != checkpointVersion || cp.LastRowNumber < 0 || cp.ValidCount < 0 || cp.InvalidCount < 0 ||
		cp.ValidCount+cp.InvalidCount != int64(cp.LastRowNumber) {
		return Checkpoint{}, false, fmt.Errorf("%w: version %d row %d", errCorruptCheckpoint, cp.Version, cp.LastRowNumber)
	}
	return cp, true, nil
}

// ParseCursor is the in-memory position of a parse invocation.
type ParseCursor struct {
	LastRowNumber int
	ValidRows     int64
	InvalidRows   int64
	Chunk         int
}

type StagingWriter struct {
	store domain.StagingStore
	now   func() time.Time
	log   *logrus.Entry
}

func NewStagingWriter(store domain.StagingStore, now func() time.Time, log *logrus.Entry) *StagingWriter {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StagingWriter{store: store, now: now, log: log.WithField("component", "staging_writer")}
}

// Begin resumes from the job checkpoint. Staged rows after the checkpoint
// are purged and counters rewound to it; without a usable checkpoint every
// staged row is purged.
func (w *StagingWriter) Begin(ctx context.Context, job domain.ImportJob) (ParseCursor, error) {
	cursor := ParseCursor{}
	checkpoint := job.Checkpoint

	cp, ok, err := DecodeCheckpoint(job.Checkpoint)
	switch {
	case err != nil:
		w.log.WithError(err).WithField("job_id", job.ID).Warn("discarding checkpoint, parsing restarts from the first row")
		checkpoint = nil
	case ok:
		cursor = ParseCursor{
			LastRowNumber: cp.LastRowNumber,
			ValidRows:     cp.ValidCount,
			InvalidRows:   cp.InvalidCount,
			Chunk:         job.CurrentChunk,
		}
	default:
		checkpoint = nil
	}

	err = w.store.Rewind(ctx, job.ID, cursor.LastRowNumber, domain.ParseProgress{
		ProcessedRows: cursor.ValidRows + cursor.InvalidRows,
		ValidRows:     cursor.ValidRows,
		InvalidRows:   cursor.InvalidRows,
		CurrentChunk:  cursor.Chunk,
		Checkpoint:    checkpoint,
	})
	if err != nil {
		return ParseCursor{}, fmt.Errorf("rewind staging to row %d: %w", cursor.LastRowNumber, err)
	}
	return cursor, nil
}

// Write stages rows and advances the checkpoint in one transaction. cursor
// moves only when the write succeeds.
func (w *StagingWriter) Write(ctx context.Context, jobID string, cursor *ParseCursor, rows []domain.ImportRow) error {
	if len(rows) == 0 {
		return nil
	}

	next := *cursor
	next.Chunk++
	for i := range rows {
		if rows[i].RowNumber <= next.LastRowNumber {
			return fmt.Errorf("row %d is not after row %d", rows[i].RowNumber, next.LastRowNumber)
		}
		rows[i].JobID = jobID
		rows[i].ChunkNumber = next.Chunk
		next.LastRowNumber = rows[i].RowNumber
		if rows[i].Status == domain.RowValid {
			next.ValidRows++
		} else {
			next.InvalidRows++
		}
	}

	token, err := json.Marshal(Checkpoint{
		Version:       checkpointVersion,
		LastRowNumber: next.LastRowNumber,
		ValidCount:    next.ValidRows,
		InvalidCount:  next.InvalidRows,
		Timestamp:     w.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	err = w.store.AppendBatch(ctx, jobID, rows, domain.ParseProgress{
		ProcessedRows: next.ValidRows + next.InvalidRows,
		ValidRows:     next.ValidRows,
		InvalidRows:   next.InvalidRows,
		CurrentChunk:  next.Chunk,
		Checkpoint:    token,
	})
	if err != nil {
		return err
	}

	*cursor = next
	return nil
}
