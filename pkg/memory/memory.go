// Package memory keeps bounded in-process conversation history per
// session.
package memory

import (
	"sync"

	"github.com/docsage/docsage/pkg/config"
	"github.com/docsage/docsage/pkg/llms"
	"github.com/docsage/docsage/pkg/prompt"
)

type session struct {
	turns  []llms.Message
	tokens int
}

// Service stores per-session history with turn and token caps. Oldest
// turns are evicted first. Safe for concurrent use.
type Service struct {
	mu        sync.RWMutex
	sessions  map[string]*session
	maxTurns  int
	maxTokens int
}

func NewService(cfg config.SessionConfig) *Service {
	return &Service{
		sessions:  make(map[string]*session),
		maxTurns:  cfg.MaxTurns,
		maxTokens: cfg.MaxTokens,
	}
}

// Append records a turn, creating the session on first use.
func (s *Service) Append(sessionID string, msg llms.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &session{}
		s.sessions[sessionID] = sess
	}

	sess.turns = append(sess.turns, msg)
	sess.tokens += prompt.EstimateTokens(msg.Content)

	for len(sess.turns) > 0 &&
		(len(sess.turns) > s.maxTurns || sess.tokens > s.maxTokens) {
		sess.tokens -= prompt.EstimateTokens(sess.turns[0].Content)
		sess.turns = sess.turns[1:]
	}
}

// History returns a copy of the session's turns, oldest first. A
// lookup never creates the session.
func (s *Service) History(sessionID string) []llms.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]llms.Message, len(sess.turns))
	copy(out, sess.turns)
	return out
}

// Exists reports whether the session has recorded history.
func (s *Service) Exists(sessionID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sessions[sessionID]
	return ok
}

// SessionCount returns the number of live sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Clear drops the session. Clearing an unknown session is a no-op.
func (s *Service) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
