package worker

// Reservation jobs that exhaust their retries land in a Redis list keyed
// "dlq:" + source queue, so an operator can inspect which moves failed to
// reserve and replay them once the stock situation is fixed.

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// DeadLetter records a job the pool gave up on. MoveIDs is filled when the
// payload decodes as a reservation batch, so the affected moves are visible
// without unpacking the raw payload.
type DeadLetter struct {
	Queue    string          `json:"queue"`
	JobType  string          `json:"job_type"`
	MoveIDs  []uuid.UUID     `json:"move_ids,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	Reason   string          `json:"reason"`
	Attempts int             `json:"attempts"`
	FailedAt time.Time       `json:"failed_at"`
}

// SendToDLQ parks a failed job on the dead letter list for its source queue.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue string, jobType string, payload json.RawMessage, reason string, attempts int) {
	entry := DeadLetter{
		Queue:    queue,
		JobType:  jobType,
		MoveIDs:  moveIDsFromPayload(jobType, payload),
		Payload:  payload,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to marshal entry")
		return
	}

	if err := rdb.LPush(ctx, DLQPrefix+queue, data).Err(); err != nil {
		log.Error().Err(err).Str("queue", queue).Msg("dlq: failed to push entry")
		return
	}

	log.Warn().
		Str("queue", queue).
		Str("job_type", jobType).
		Str("reason", reason).
		Int("attempts", attempts).
		Int("moves", len(entry.MoveIDs)).
		Msg("dlq: job parked after retries exhausted")
}

func moveIDsFromPayload(jobType string, payload json.RawMessage) []uuid.UUID {
	if jobType != "reserve" {
		return nil
	}
	var req ReservePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil
	}
	return req.MoveIDs
}

// DLQLength reports the number of parked jobs for a queue. Surfaced through
// the health endpoint so a growing backlog shows up in monitoring.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}
