package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/schema"
)

// Log is the node's append-only log of signed operations, stored in Redis.
// All keys and channels are namespaced with the instance name.
// The log is thread-safe and can be used concurrently from multiple goroutines.
type Log struct {
	rdb          *redis.Client
	instanceName string
}

// Position is an entry's place in the log's total order.
type Position struct {
	StreamID string
	Hash     string
}

// NewLog creates a log client for the specified instance.
//
// Parameters:
//   - redisOpts: Redis connection options (address, password, DB, etc.)
//   - instanceName: node instance identifier (must not be empty)
func NewLog(redisOpts *redis.Options, instanceName string) (*Log, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Log{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (l *Log) Close() error {
	return l.rdb.Close()
}

// Ping verifies Redis connectivity.
func (l *Log) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

// ErrEntryConflict is returned by Append when an entry with the same hash
// exists but cannot be read back. The submission may be retried.
var ErrEntryConflict = errors.New("entry exists but is unreadable")

// appendScript claims the entry hash, allocates the author's next sequence
// number, stores the entry, adds it to the log stream and announces it, all
// in one step. Returns 0 when the hash is already present.
//
// KEYS: entry hash, author sequence counter, log stream
// ARGV: hash, author, schema_id, operation, signature, created_at_ms, events channel
var appendScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
local seq = redis.call('INCR', KEYS[2])
redis.call('HSET', KEYS[1],
	'hash', ARGV[1],
	'author', ARGV[2],
	'seq', seq,
	'schema_id', ARGV[3],
	'operation', ARGV[4],
	'signature', ARGV[5],
	'created_at_ms', ARGV[6])
redis.call('XADD', KEYS[3], '*', 'hash', ARGV[1])
redis.call('PUBLISH', ARGV[7], ARGV[1])
return seq
`)

// Append stores a verified signed operation as a new log entry, assigns it
// the author's next sequence number, adds it to the log stream and announces
// it on the entry events channel. The steps run as one Redis script, so an
// interrupted append leaves nothing behind.
//
// Appending an entry whose hash is already in the log is a no-op: the
// existing entry is returned with created=false.
func (l *Log) Append(ctx context.Context, signed *operation.SignedOperation, schemaID schema.ID) (*Entry, bool, error) {
	h, err := signed.Hash()
	if err != nil {
		return nil, false, err
	}

	entry := &Entry{
		Hash:        h.String(),
		Author:      signed.PublicKey,
		Seq:         1, // assigned by the script
		SchemaID:    schemaID,
		Operation:   signed.Payload,
		Signature:   signed.Signature,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := entry.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid entry: %w", err)
	}

	fields := EntryToHash(entry)
	seq, err := appendScript.Run(ctx, l.rdb,
		[]string{
			EntryKey(l.instanceName, entry.Hash),
			AuthorSeqKey(l.instanceName, string(entry.Author)),
			LogStreamKey(l.instanceName),
		},
		entry.Hash,
		fields["author"],
		fields["schema_id"],
		fields["operation"],
		fields["signature"],
		entry.CreatedAtMs,
		EntryEventsChannel(l.instanceName),
	).Int64()
	if err != nil {
		return nil, false, fmt.Errorf("failed to append entry to Redis: %w", err)
	}

	if seq == 0 {
		existing, err := l.GetEntry(ctx, entry.Hash)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrEntryConflict, entry.Hash, err)
		}
		return existing, false, nil
	}

	entry.Seq = seq
	return entry, true, nil
}

// GetEntry retrieves an entry by hash.
// Returns (nil, redis.Nil) if the entry doesn't exist; use IsNotFound.
func (l *Log) GetEntry(ctx context.Context, hash string) (*Entry, error) {
	hashData, err := l.rdb.HGetAll(ctx, EntryKey(l.instanceName, hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry from Redis: %w", err)
	}

	if len(hashData) == 0 {
		return nil, redis.Nil
	}

	entry, err := HashToEntry(hashData)
	if err != nil {
		return nil, fmt.Errorf("failed to deserialize entry: %w", err)
	}
	return entry, nil
}

// Entries returns up to count positions that come strictly after the given
// stream ID, in log order. An empty after starts from the beginning.
func (l *Log) Entries(ctx context.Context, after string, count int64) ([]Position, error) {
	start := "-"
	if after != "" {
		start = after
	}

	// XRANGE is inclusive, so ask for one extra and drop the cursor itself.
	msgs, err := l.rdb.XRangeN(ctx, LogStreamKey(l.instanceName), start, "+", count+1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read log stream: %w", err)
	}

	positions := make([]Position, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID == after {
			continue
		}
		hash, _ := msg.Values["hash"].(string)
		positions = append(positions, Position{StreamID: msg.ID, Hash: hash})
		if int64(len(positions)) == count {
			break
		}
	}
	return positions, nil
}

// Len returns the number of entries in the log.
func (l *Log) Len(ctx context.Context) (int64, error) {
	n, err := l.rdb.XLen(ctx, LogStreamKey(l.instanceName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read log length: %w", err)
	}
	return n, nil
}

// Subscription represents an active Pub/Sub subscription to entry events.
// Caller must call Close() when done to clean up resources.
type Subscription struct {
	events <-chan string
	errors <-chan error
	cancel func()
	once   sync.Once
}

// Events returns the channel of appended entry hashes.
// The channel will be closed when the subscription is closed or the context is cancelled.
func (s *Subscription) Events() <-chan string {
	return s.events
}

// Errors returns the channel of subscription errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription. Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	return nil
}

// Subscribe subscribes to entry events for this instance.
// Events are at-most-once: a slow subscriber can miss notifications and must
// catch up from the stream.
func (l *Log) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := l.rdb.Subscribe(ctx, EntryEventsChannel(l.instanceName))

	// Wait for confirmation so no event published after Subscribe returns is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to entry events: %w", err)
	}

	eventsChan := make(chan string, 10)
	errorsChan := make(chan error, 10)

	subCtx, cancelFunc := context.WithCancel(ctx)

	go func() {
		defer close(eventsChan)
		defer close(errorsChan)
		defer pubsub.Close()

		ch := pubsub.Channel()

		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg.Payload == "" {
					select {
					case errorsChan <- fmt.Errorf("empty entry event on %s", msg.Channel):
					case <-subCtx.Done():
						return
					}
					continue
				}

				select {
				case eventsChan <- msg.Payload:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancelFunc,
	}, nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
