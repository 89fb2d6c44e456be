package reader

import (
	"context"
	"errors"
	"fmt"

	lodelibrary "github.com/justapithecus/lode/lode"

	"github.com/justapithecus/catalogfeed/lode"
	"github.com/justapithecus/catalogfeed/schedule"
)

// Reader abstracts read-only data access for CLI commands.
type Reader interface {
	Status(ctx context.Context) (*StatusResponse, error)
}

// FeedReader reads one feed's run state and publish history.
type FeedReader struct {
	feed    string
	state   schedule.StateStore
	history lodelibrary.Dataset
}

// New creates a FeedReader. history may be nil when history is disabled.
func New(feed string, state schedule.StateStore, history lodelibrary.Dataset) *FeedReader {
	return &FeedReader{feed: feed, state: state, history: history}
}

// Status combines the saved run state with the latest published run.
// Missing state or an empty history are not errors.
func (r *FeedReader) Status(ctx context.Context) (*StatusResponse, error) {
	resp := &StatusResponse{Feed: r.feed, Phase: PhaseIdle}

	state, err := r.state.Load(ctx)
	switch {
	case errors.Is(err, schedule.ErrNoState):
	case err != nil:
		return nil, fmt.Errorf("load run state: %w", err)
	default:
		resp.Phase = Phase(state)
		if !state.Completed {
			resp.Current = currentRun(state)
		}
	}

	if r.history == nil {
		return resp, nil
	}
	latest, err := lode.QueryLatestRun(ctx, r.history, r.feed)
	switch {
	case errors.Is(err, lode.ErrNoRunsFound):
	case err != nil:
		return nil, fmt.Errorf("query run history: %w", err)
	default:
		resp.Latest = publishedRun(latest)
	}
	return resp, nil
}

var _ Reader = (*FeedReader)(nil)
