package title

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Flight coalesces concurrent calls for the same key so the underlying
// function runs once and every caller receives its result
type Flight struct {
	group   singleflight.Group
	running atomic.Int64
}

// NewFlight creates an empty flight group
func NewFlight() *Flight {
	return &Flight{}
}

// Do runs fn for key unless a call for key is already running, in which case
// it waits for that call. fn receives a context detached from any single
// caller, so one caller giving up does not fail the others. Errors are not
// remembered past the run that produced them. The returned bool reports
// whether the result was shared with another caller.
func (f *Flight) Do(ctx context.Context, key string, fn func(context.Context) (string, error)) (string, bool, error) {
	detached := context.WithoutCancel(ctx)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		f.running.Add(1)
		defer f.running.Add(-1)
		return fn(detached)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Shared, res.Err
		}
		return res.Val.(string), res.Shared, nil
	case <-ctx.Done():
		return "", false, ctx.Err()
	}
}

// Size returns the number of keys with a call in progress
func (f *Flight) Size() int {
	return int(f.running.Load())
}
