package listview

import (
	"context"
	"sync"
)

// Token identifies one issued fetch. Tokens increase monotonically.
type Token uint64

// Sequencer hands out fetch tokens and decides which response may publish:
// only the most recently issued token is accepted. Issuing a new token
// cancels the context of the previous in-flight fetch.
type Sequencer struct {
	mu     sync.Mutex
	latest Token
	cancel context.CancelFunc
}

// Next issues a new token and derives a context that is cancelled when a
// newer token is issued or Cancel is called.
func (s *Sequencer) Next(parent context.Context) (Token, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.latest++
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	return s.latest, ctx
}

// Accept reports whether token is still the latest issued one.
func (s *Sequencer) Accept(token Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return token == s.latest
}

// Latest returns the most recently issued token.
func (s *Sequencer) Latest() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// Cancel aborts the in-flight fetch, if any, and invalidates its token.
func (s *Sequencer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.latest++
}
