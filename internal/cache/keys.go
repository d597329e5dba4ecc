package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// ClassificationKey addresses a cached classification result by the
// order-insensitive fingerprint of the ticket-text set.
func ClassificationKey(fingerprint string) string {
	return fmt.Sprintf("classification:%s", fingerprint)
}

func JobStatusKey(jobID uuid.UUID) string {
	return fmt.Sprintf("job:%s", jobID)
}

func RateLimitKey(keyPrefix string) string {
	return fmt.Sprintf("ratelimit:%s", keyPrefix)
}
