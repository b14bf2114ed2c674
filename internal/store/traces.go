package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Trace is one proxied request, recorded after the response finished.
type Trace struct {
	APIKeyID        *uuid.UUID
	StartedAt       time.Time
	Method          string
	Path            string
	ClientModel     string
	UpstreamModel   string
	Streamed        bool
	StatusCode      int
	LatencyMS       int
	InputTokens     int
	OutputTokens    int
	CacheReadTokens int
	StopReason      string
	RawFinishReason string
	Anomalies       int
	ErrorMessage    string
}

// InsertTraceBatch writes a batch of traces in one round trip.
func (s *Store) InsertTraceBatch(ctx context.Context, traces []*Trace) error {
	if len(traces) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO request_traces (
			api_key_id, started_at, method, path, client_model, upstream_model,
			streamed, status_code, latency_ms, input_tokens, output_tokens,
			cache_read_tokens, stop_reason, raw_finish_reason, anomalies, error_message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	for _, tr := range traces {
		batch.Queue(query,
			tr.APIKeyID, tr.StartedAt, tr.Method, tr.Path, nullable(tr.ClientModel), nullable(tr.UpstreamModel),
			tr.Streamed, tr.StatusCode, tr.LatencyMS, tr.InputTokens, tr.OutputTokens,
			tr.CacheReadTokens, nullable(tr.StopReason), nullable(tr.RawFinishReason), tr.Anomalies, nullable(tr.ErrorMessage),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range traces {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert trace batch: %w", err)
		}
	}
	return nil
}

// DeleteOldTraces removes traces started before cutoff and reports how many
// went away.
func (s *Store) DeleteOldTraces(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM request_traces WHERE started_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old traces: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
