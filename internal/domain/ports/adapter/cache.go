package adapter

import "context"

// StatusCache is a short-lived read cache in front of the poll path. Display
// devices poll every few seconds; caching terminal statuses absorbs the
// redundant reads. Purely an optimization: callers must treat misses and
// errors as "go to the store".
type StatusCache interface {
	Get(ctx context.Context, code string) (status string, userID string, ok bool)
	Set(ctx context.Context, code, status, userID string) error
	Invalidate(ctx context.Context, code string) error
}
