package seen

import (
	"context"
)

//go:generate go run go.uber.org/mock/mockgen -source=seen.go -destination=mocks/mock.go
type Repository interface {
	// CheckAndAdmit records id and reports true only if it was not recorded before.
	// Non-positive ids are never admitted.
	CheckAndAdmit(ctx context.Context, id int64) (bool, error)

	// Cleanup deletes records processed more than retentionDays ago.
	Cleanup(ctx context.Context, retentionDays int) (int64, error)

	// RecentIDs returns the most recently processed ids, newest first.
	RecentIDs(ctx context.Context, limit int) ([]int64, error)

	Close() error
}
