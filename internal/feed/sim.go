package feed

import (
	"context"
	"sync"
)

// SimFeed is an in-process feed for tests and dry runs. Publish*
// methods deliver events synchronously to registered callbacks, which
// matches the dispatch model of the live adapters (one goroutine per
// stream, callbacks invoked in arrival order).
type SimFeed struct {
	mu          sync.Mutex
	underlying  []func(UnderlyingTick)
	options     []func(OptionTick)
	heartbeats  []func(string)
}

func NewSimFeed() *SimFeed { return &SimFeed{} }

func (f *SimFeed) OnTick(fn func(UnderlyingTick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.underlying = append(f.underlying, fn)
}

func (f *SimFeed) OnOptionTick(fn func(OptionTick)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.options = append(f.options, fn)
}

func (f *SimFeed) OnHeartbeat(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, fn)
}

func (f *SimFeed) PublishUnderlying(t UnderlyingTick) {
	f.mu.Lock()
	fns := append([]func(UnderlyingTick){}, f.underlying...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (f *SimFeed) PublishOption(t OptionTick) {
	f.mu.Lock()
	fns := append([]func(OptionTick){}, f.options...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(t)
	}
}

func (f *SimFeed) PublishHeartbeat(symbol string) {
	f.mu.Lock()
	fns := append([]func(string){}, f.heartbeats...)
	f.mu.Unlock()
	for _, fn := range fns {
		fn(symbol)
	}
}

func (f *SimFeed) Close() error { return nil }

// RecordingSink captures subscription requests for assertions.
type RecordingSink struct {
	mu    sync.Mutex
	Calls [][]string
}

func (s *RecordingSink) Subscribe(_ context.Context, contracts []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := append([]string{}, contracts...)
	s.Calls = append(s.Calls, cp)
	return nil
}

func (s *RecordingSink) Last() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Calls) == 0 {
		return nil
	}
	return s.Calls[len(s.Calls)-1]
}

func (s *RecordingSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Calls)
}
