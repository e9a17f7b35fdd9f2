package node

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/stash/pkg/operation"
	"github.com/dyluth/stash/pkg/schema"
)

const (
	// DefaultCatchUpInterval is how often the projector re-reads the stream
	// when no entry notification arrives.
	DefaultCatchUpInterval = time.Second

	catchUpBatch = 100
)

// Projector follows the log stream and applies entries to the projection
// in log order. The time between Append and Apply is the window in which a
// query can miss a just-accepted document.
type Projector struct {
	log      *Log
	proj     *Projection
	registry *schema.Registry
	interval time.Duration

	// mu serialises catch-up passes so entries are applied in order.
	mu sync.Mutex
}

// NewProjector creates a projector. A non-positive interval uses
// DefaultCatchUpInterval.
func NewProjector(l *Log, proj *Projection, registry *schema.Registry, interval time.Duration) *Projector {
	if interval <= 0 {
		interval = DefaultCatchUpInterval
	}
	return &Projector{log: l, proj: proj, registry: registry, interval: interval}
}

// Run applies entries until ctx is cancelled. It wakes on entry
// notifications and on a periodic timer, so missed notifications only
// delay projection.
func (p *Projector) Run(ctx context.Context) error {
	sub, err := p.log.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer sub.Close()

	log.Printf("[Projector] Following log for instance '%s'", p.log.instanceName)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.catchUp(ctx)

	errs := sub.Errors()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[Projector] Shutting down...")
			return nil

		case _, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("entry subscription closed")
			}
			p.catchUp(ctx)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Printf("[Projector] Subscription error: %v", err)

		case <-ticker.C:
			p.catchUp(ctx)
		}
	}
}

func (p *Projector) catchUp(ctx context.Context) {
	if _, err := p.Sync(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[Projector] Catch-up failed: %v", err)
	}
}

// Sync applies every entry appended since the projection's cursor and
// returns how many were applied.
func (p *Projector) Sync(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cursor, err := p.proj.Cursor(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for {
		batch, err := p.log.Entries(ctx, cursor, catchUpBatch)
		if err != nil {
			return applied, err
		}
		if len(batch) == 0 {
			return applied, nil
		}

		for _, pos := range batch {
			if err := p.applyPosition(ctx, pos); err != nil {
				return applied, err
			}
			cursor = pos.StreamID
			applied++
		}
	}
}

func (p *Projector) applyPosition(ctx context.Context, pos Position) error {
	entry, err := p.log.GetEntry(ctx, pos.Hash)
	if err != nil {
		if IsNotFound(err) {
			log.Printf("[Projector] [WARN] Stream entry %s references missing entry %s; skipping", pos.StreamID, pos.Hash)
			return p.proj.Skip(ctx, pos.StreamID)
		}
		return err
	}

	rec, err := p.record(entry)
	if err != nil {
		log.Printf("[Projector] [WARN] Entry %s cannot be projected: %v; skipping", entry.Hash, err)
		return p.proj.Skip(ctx, pos.StreamID)
	}

	return p.proj.Apply(ctx, rec, pos.StreamID)
}

// record decodes an entry into a projection record.
func (p *Projector) record(entry *Entry) (Record, error) {
	desc, ok := p.registry.Lookup(entry.SchemaID)
	if !ok {
		return Record{}, fmt.Errorf("schema %s is not deployed", entry.SchemaID)
	}

	op, err := operation.Decode(entry.Operation, p.registry)
	if err != nil {
		return Record{}, err
	}

	written := op.Values()
	resolved := make(map[string]schema.Value, len(desc.Fields))
	for _, spec := range desc.Fields {
		if v, ok := written[spec.Name]; ok {
			resolved[spec.Name] = v
		} else if spec.Default != nil {
			resolved[spec.Name] = *spec.Default
		}
	}

	// Create operations: the document and its first view share the entry hash.
	return Record{
		DocumentID: entry.Hash,
		ViewID:     entry.Hash,
		Owner:      entry.Author,
		SchemaID:   entry.SchemaID,
		Written:    written,
		Resolved:   resolved,
	}, nil
}
