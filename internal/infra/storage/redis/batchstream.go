package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gabapcia/txbatch/internal/batchproc"
	"github.com/gabapcia/txbatch/internal/digest"

	"github.com/redis/go-redis/v9"
)

const (
	batchstreamKeyPrefix = "batchstream"

	// DefaultDedupeTTL is how long a published batch ID is remembered.
	DefaultDedupeTTL = 24 * time.Hour
)

var (
	// ErrAlreadyPublished is returned by Publish for a batch ID already on the stream.
	ErrAlreadyPublished = errors.New("batch already published")

	// ErrNoCheckpoint is returned by LastCheckpoint before any batch was published.
	ErrNoCheckpoint = errors.New("no batch published yet")

	// ErrMalformedEntry is returned when a stream entry lacks a field or holds
	// an unparsable value.
	ErrMalformedEntry = errors.New("malformed batch entry")
)

// "batchstream:published:<stream>:<batch id>"
func publishedKey(stream, batchID string) string {
	return fmt.Sprintf("%s:published:%s:%s", batchstreamKeyPrefix, stream, batchID)
}

// "batchstream:checkpoint:<stream>"
func checkpointKey(stream string) string {
	return fmt.Sprintf("%s:checkpoint:%s", batchstreamKeyPrefix, stream)
}

// publishScript appends a batch to the stream unless its ID was published
// within the dedupe window, and moves the checkpoint. It returns the new
// entry ID, or nil when the batch was already published.
//
// KEYS: stream, published key, checkpoint key.
// ARGV: maxlen, dedupe ttl seconds, id, digest, count, created_at, elapsed_ns, transactions.
var publishScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
  return false
end

local args = {'XADD', KEYS[1]}
if tonumber(ARGV[1]) > 0 then
  table.insert(args, 'MAXLEN')
  table.insert(args, '~')
  table.insert(args, ARGV[1])
end
table.insert(args, '*')

local fields = {'id', 'digest', 'count', 'created_at', 'elapsed_ns', 'transactions'}
for i, name in ipairs(fields) do
  table.insert(args, name)
  table.insert(args, ARGV[i + 2])
end

local entry = redis.call(unpack(args))
redis.call('SET', KEYS[2], entry, 'EX', ARGV[2])
redis.call('HSET', KEYS[3], 'batch_id', ARGV[3], 'digest', ARGV[4], 'entry_id', entry)
return entry
`)

// Checkpoint identifies the most recently published batch of a stream.
type Checkpoint struct {
	BatchID string
	Digest  digest.Digest
	EntryID string
}

// BatchStream appends batches of T to a Redis stream. Transactions are stored
// as a JSON array, so T must marshal to JSON.
type BatchStream[T digest.Transaction] struct {
	conn      *redis.Client
	stream    string
	maxLen    int64
	dedupeTTL time.Duration
}

// NewBatchStream returns a BatchStream writing to stream. A positive maxLen
// trims the stream to about that many entries on every publish (MAXLEN ~).
func NewBatchStream[T digest.Transaction](c *Client, stream string, maxLen int64) *BatchStream[T] {
	return &BatchStream[T]{
		conn:      c.conn,
		stream:    stream,
		maxLen:    maxLen,
		dedupeTTL: DefaultDedupeTTL,
	}
}

// Publish appends b to the stream and returns the stream entry ID. Publishing
// the same batch ID twice within DefaultDedupeTTL returns ErrAlreadyPublished,
// which makes retrying a failed Publish safe.
func (s *BatchStream[T]) Publish(ctx context.Context, b batchproc.Batch[T]) (string, error) {
	txs, err := json.Marshal(b.Transactions)
	if err != nil {
		return "", fmt.Errorf("encode transactions of batch %s: %w", b.ID, err)
	}

	keys := []string{s.stream, publishedKey(s.stream, b.ID), checkpointKey(s.stream)}
	args := []any{
		s.maxLen,
		int64(s.dedupeTTL / time.Second),
		b.ID,
		b.Digest.String(),
		b.Len(),
		b.CreatedAt.UTC().Format(time.RFC3339Nano),
		b.Elapsed.Nanoseconds(),
		string(txs),
	}

	entryID, err := publishScript.Run(ctx, s.conn, keys, args...).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", fmt.Errorf("%w: %s", ErrAlreadyPublished, b.ID)
		}
		return "", err
	}
	return entryID, nil
}

// LastCheckpoint returns the most recently published batch of the stream.
func (s *BatchStream[T]) LastCheckpoint(ctx context.Context) (Checkpoint, error) {
	vals, err := s.conn.HGetAll(ctx, checkpointKey(s.stream)).Result()
	if err != nil {
		return Checkpoint{}, err
	}
	if len(vals) == 0 {
		return Checkpoint{}, ErrNoCheckpoint
	}

	d, err := digest.Parse(vals["digest"])
	if err != nil {
		return Checkpoint{}, fmt.Errorf("%w: checkpoint digest: %w", ErrMalformedEntry, err)
	}

	return Checkpoint{
		BatchID: vals["batch_id"],
		Digest:  d,
		EntryID: vals["entry_id"],
	}, nil
}

// Read loads the batch stored under entryID. The digest is returned as stored;
// use batchvalidator.Validator.Verify to check it against the transactions.
func (s *BatchStream[T]) Read(ctx context.Context, entryID string) (batchproc.Batch[T], error) {
	msgs, err := s.conn.XRangeN(ctx, s.stream, entryID, entryID, 1).Result()
	if err != nil {
		return batchproc.Batch[T]{}, err
	}
	if len(msgs) == 0 {
		return batchproc.Batch[T]{}, fmt.Errorf("%w: entry %s not found", ErrMalformedEntry, entryID)
	}

	return decodeBatch[T](msgs[0].Values)
}

func decodeBatch[T digest.Transaction](values map[string]any) (batchproc.Batch[T], error) {
	field := func(name string) (string, error) {
		v, ok := values[name].(string)
		if !ok {
			return "", fmt.Errorf("missing field %q", name)
		}
		return v, nil
	}

	var (
		b    batchproc.Batch[T]
		errs []error
		raw  string
		err  error
	)

	b.ID, err = field("id")
	errs = append(errs, err)

	if raw, err = field("digest"); err == nil {
		b.Digest, err = digest.Parse(raw)
	}
	errs = append(errs, err)

	if raw, err = field("created_at"); err == nil {
		b.CreatedAt, err = time.Parse(time.RFC3339Nano, raw)
	}
	errs = append(errs, err)

	if raw, err = field("elapsed_ns"); err == nil {
		var ns int64
		ns, err = strconv.ParseInt(raw, 10, 64)
		b.Elapsed = time.Duration(ns)
	}
	errs = append(errs, err)

	var count int
	if raw, err = field("count"); err == nil {
		count, err = strconv.Atoi(raw)
	}
	errs = append(errs, err)

	if raw, err = field("transactions"); err == nil {
		if err = json.Unmarshal([]byte(raw), &b.Transactions); err == nil && len(b.Transactions) != count {
			err = fmt.Errorf("count is %d but %d transactions are stored", count, len(b.Transactions))
		}
	}
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return batchproc.Batch[T]{}, fmt.Errorf("%w: %w", ErrMalformedEntry, err)
	}
	return b, nil
}
