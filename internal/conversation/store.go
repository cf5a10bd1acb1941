package conversation

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Options configures a Store.
type Options struct {
	SystemPrompt string
	MaxTurns     int
	// IdleTTL evicts conversations untouched for this long. Zero keeps them for the process lifetime.
	IdleTTL time.Duration
}

type entry struct {
	turns          []Turn
	gen            uint64
	lastActivityAt time.Time
}

// Store keeps one rolling conversation per client identifier.
//
// All access is serialized by a single lock. Callers must not hold on to
// anything returned by the store across a completion call: Snapshot hands out
// a copy so the lock can be released before the remote round trip.
type Store struct {
	mu           sync.RWMutex
	entries      map[string]*entry
	systemPrompt string
	maxTurns     int
	idleTTL      time.Duration
	onExpire     func(clientID string)
	now          func() time.Time
	lastGen      uint64
}

func NewStore(opts Options) *Store {
	prompt := opts.SystemPrompt
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSystemPrompt
	}
	maxTurns := opts.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		entries:      make(map[string]*entry),
		systemPrompt: prompt,
		maxTurns:     maxTurns,
		idleTTL:      opts.IdleTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// MaxTurns reports the configured retention bound.
func (s *Store) MaxTurns() int { return s.maxTurns }

func (s *Store) SetExpireHook(hook func(clientID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = hook
}

// Ensure returns the conversation for clientID, seeding it with the system turn on first use.
func (s *Store) Ensure(clientID string) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.ensureLocked(clientID).turns)
}

func (s *Store) ensureLocked(clientID string) *entry {
	e, ok := s.entries[clientID]
	if !ok {
		s.lastGen++
		e = &entry{
			turns:          []Turn{{Role: RoleSystem, Content: s.systemPrompt}},
			gen:            s.lastGen,
			lastActivityAt: s.now(),
		}
		s.entries[clientID] = e
	}
	return e
}

func (s *Store) AppendUser(clientID, text string) error {
	if text == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(clientID)
	e.turns = append(e.turns, Turn{Role: RoleUser, Content: text})
	e.lastActivityAt = s.now()
	return nil
}

// AppendAssistant records a reply against the conversation generation returned
// by Window. It reports false and drops the reply when that conversation has
// since been cleared or expired.
func (s *Store) AppendAssistant(clientID string, gen uint64, text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[clientID]
	if !ok || e.gen != gen {
		return false
	}
	e.turns = append(e.turns, Turn{Role: RoleAssistant, Content: text})
	e.lastActivityAt = s.now()
	return true
}

// Trim keeps only the most recent maxTurns turns. The system turn is not
// protected and falls out of the window like any other turn.
func (s *Store) Trim(clientID string, maxTurns int) {
	if maxTurns <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[clientID]
	if !ok || len(e.turns) <= maxTurns {
		return
	}
	kept := make([]Turn, maxTurns)
	copy(kept, e.turns[len(e.turns)-maxTurns:])
	e.turns = kept
}

func (s *Store) Clear(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, clientID)
}

// Snapshot returns a copy of the current turns, or nil when the client has no conversation.
func (s *Store) Snapshot(clientID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[clientID]
	if !ok {
		return nil
	}
	return clone(e.turns)
}

// Window is Snapshot plus the generation of the conversation it was taken from.
// The generation is 0 when the client has no conversation.
func (s *Store) Window(clientID string) ([]Turn, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[clientID]
	if !ok {
		return nil, 0
	}
	return clone(e.turns), e.gen
}

func (s *Store) Len(clientID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[clientID]
	if !ok {
		return 0
	}
	return len(e.turns)
}

// Count returns the number of live conversations.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartJanitor evicts idle conversations until ctx is done. It is a no-op when IdleTTL is zero.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if s.idleTTL <= 0 {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.expireIdle()
			}
		}
	}()
}

func (s *Store) expireIdle() {
	now := s.now()
	var expired []string

	s.mu.Lock()
	for id, e := range s.entries {
		if now.Sub(e.lastActivityAt) < s.idleTTL {
			continue
		}
		delete(s.entries, id)
		expired = append(expired, id)
	}
	hook := s.onExpire
	s.mu.Unlock()

	if hook != nil {
		for _, id := range expired {
			hook(id)
		}
	}
}

func clone(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}
