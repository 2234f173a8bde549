package bando

import (
	"fmt"
	"sync"

	"github.com/vitwit/bando/types"
)

// Session remembers the quotes already broadcast by its owner so that a
// quote is never paid twice. The zero value is ready to use.
type Session struct {
	mu        sync.Mutex
	processed map[string]struct{}
}

func NewSession() *Session {
	return &Session{processed: make(map[string]struct{})}
}

// Claim marks quoteID as broadcast. It fails with ALREADY_PROCESSED when the
// quote was claimed before. An empty id cannot be tracked and is always
// accepted.
func (s *Session) Claim(quoteID string) error {
	if quoteID == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.processed == nil {
		s.processed = make(map[string]struct{})
	}
	if _, ok := s.processed[quoteID]; ok {
		return types.NewError(types.ErrAlreadyProcessed, types.StageSubmission,
			fmt.Sprintf("quote %s was already submitted", quoteID), nil).WithIDs(quoteID, "")
	}
	s.processed[quoteID] = struct{}{}
	return nil
}

// Processed reports whether quoteID was claimed.
func (s *Session) Processed(quoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[quoteID]
	return ok
}
