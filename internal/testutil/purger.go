package testutil

import (
	"context"
	"sync"
)

// RecordingPurger records every purge call. If Err is set, Purge records
// the call and then fails with it.
type RecordingPurger struct {
	mu   sync.Mutex
	urls []string
	Err  error
}

func (p *RecordingPurger) Purge(_ context.Context, urls []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, urls...)
	return p.Err
}

// URLs returns all URLs passed to Purge so far.
func (p *RecordingPurger) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.urls...)
}
