package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Mutation Pipeline
// Outgoing "add to playlist" calls are drained by a single worker, one at a
// time, in submission order. Two rapid sort actions therefore never race on
// upstream state: the remote add for the first completes (or fails) before
// the second is issued.

// PendingMutation is one queued (track, destination) pair, created the
// instant the user commits a sort action and before the remote call resolves.
type PendingMutation struct {
	Track        Track
	PlaylistID   string
	PlaylistName string
	EnqueuedAt   time.Time
}

// MutationResult reports the outcome of one drained mutation.
type MutationResult struct {
	Mutation PendingMutation
	Err      error
}

type MutationPipeline struct {
	catalog CatalogAPI
	logger  *zap.Logger
	pending chan PendingMutation
	onDone  func(MutationResult)
}

// NewMutationPipeline creates a pipeline whose worker reports every outcome
// through onDone. The worker does not run until Run is called.
func NewMutationPipeline(catalog CatalogAPI, queueSize int, logger *zap.Logger, onDone func(MutationResult)) *MutationPipeline {
	return &MutationPipeline{
		catalog: catalog,
		logger:  logger,
		pending: make(chan PendingMutation, queueSize),
		onDone:  onDone,
	}
}

// Enqueue appends a mutation to the FIFO. It fails fast when the queue is
// saturated instead of blocking the caller.
func (p *MutationPipeline) Enqueue(m PendingMutation) error {
	m.EnqueuedAt = time.Now()

	select {
	case p.pending <- m:
		p.logger.Debug("Mutation enqueued",
			zap.String("trackID", m.Track.ID),
			zap.String("playlistID", m.PlaylistID))
		return nil
	default:
		return fmt.Errorf("mutation queue full (%d pending)", cap(p.pending))
	}
}

// Run drains the FIFO until ctx is canceled. At most one remote add is in
// flight at any time.
func (p *MutationPipeline) Run(ctx context.Context) error {
	p.logger.Info("Starting mutation pipeline", zap.Int("queueSize", cap(p.pending)))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Mutation pipeline stopped", zap.Int("dropped", len(p.pending)))
			return nil
		case m := <-p.pending:
			p.execute(ctx, m)
		}
	}
}

func (p *MutationPipeline) execute(ctx context.Context, m PendingMutation) {
	err := p.catalog.AddToPlaylist(ctx, m.PlaylistID, m.Track.ID)
	if err != nil {
		p.logger.Error("Remote add failed",
			zap.String("trackID", m.Track.ID),
			zap.String("playlistID", m.PlaylistID),
			zap.Error(err))
	} else {
		p.logger.Info("Track added to playlist",
			zap.String("trackID", m.Track.ID),
			zap.String("playlistID", m.PlaylistID),
			zap.Duration("queueDelay", time.Since(m.EnqueuedAt)))
	}

	if p.onDone != nil {
		p.onDone(MutationResult{Mutation: m, Err: err})
	}
}
