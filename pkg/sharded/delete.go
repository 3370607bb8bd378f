package sharded

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
)

// Remove deletes the shard at key. A shard that no longer exists is not an
// error, so removal can be repeated after a partial failure.
//
// Returns an error if:
//   - The object cannot be deleted (permission denied, network error)
//   - The context is cancelled (context.Canceled or context.DeadlineExceeded)
func Remove(ctx context.Context, bucket *blob.Bucket, key string) error {
	if err := bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
		return fmt.Errorf("sharded: delete shard %s: %w", key, err)
	}
	return nil
}
