package downloader

import (
	"errors"
	"fmt"
)

// ErrKeyOverflow is returned when a shard id or local key does not fit the
// configured digit widths.
var ErrKeyOverflow = errors.New("downloader: sample key overflow")

// maxKeyDigits keeps the combined key within an int64.
const maxKeyDigits = 18

// EncodeKey returns the sample key for (localKey, shardID):
// 10^perShardDigits*shardID + localKey, zero-padded to
// perShardDigits+shardCountDigits digits.
func EncodeKey(localKey, shardID, perShardDigits, shardCountDigits int) (string, error) {
	total := perShardDigits + shardCountDigits
	if perShardDigits < 0 || shardCountDigits < 0 || total > maxKeyDigits {
		return "", fmt.Errorf("%w: unsupported digit widths %d+%d", ErrKeyOverflow, perShardDigits, shardCountDigits)
	}
	if localKey < 0 || shardID < 0 {
		return "", fmt.Errorf("%w: negative key %d or shard %d", ErrKeyOverflow, localKey, shardID)
	}
	if int64(localKey) >= pow10(perShardDigits) {
		return "", fmt.Errorf("%w: local key %d needs more than %d digits", ErrKeyOverflow, localKey, perShardDigits)
	}
	if int64(shardID) >= pow10(shardCountDigits) {
		return "", fmt.Errorf("%w: shard id %d needs more than %d digits", ErrKeyOverflow, shardID, shardCountDigits)
	}

	combined := pow10(perShardDigits)*int64(shardID) + int64(localKey)
	return fmt.Sprintf("%0*d", total, combined), nil
}

// DigitsFor returns the number of digits needed for keys 0..n-1, that is
// the smallest d with 10^d >= n.
func DigitsFor(n int) int {
	d := 0
	for p := int64(1); p < int64(n); p *= 10 {
		d++
	}
	return d
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}

// KeyCodec encodes sample keys with fixed digit widths.
type KeyCodec struct {
	PerShardDigits   int
	ShardCountDigits int
}

// NewKeyCodec derives the per-shard width from the maximum number of
// samples in a shard.
func NewKeyCodec(samplesPerShard, shardCountDigits int) KeyCodec {
	return KeyCodec{
		PerShardDigits:   DigitsFor(samplesPerShard),
		ShardCountDigits: shardCountDigits,
	}
}

// Encode returns the sample key for a row of a shard.
func (c KeyCodec) Encode(localKey, shardID int) (string, error) {
	return EncodeKey(localKey, shardID, c.PerShardDigits, c.ShardCountDigits)
}

// Validate checks that every row of a shard with rowCount rows gets a
// key without overflow.
func (c KeyCodec) Validate(shardID, rowCount int) error {
	last := 0
	if rowCount > 0 {
		last = rowCount - 1
	}
	_, err := c.Encode(last, shardID)
	return err
}
