package domain

import "time"

// SeenPost records that an upstream id was admitted for delivery.
type SeenPost struct {
	ID          int64
	ProcessedAt time.Time
}
