package token

import (
	"sync"
)

// Store keeps one Set per named API client. All methods are safe for concurrent
// use; Update replaces a client's whole triple atomically so a reader never
// observes a refreshed access token paired with a stale refresh token.
type Store struct {
	mu   sync.Mutex
	sets map[string]Set
}

func NewStore() *Store {
	return &Store{sets: make(map[string]Set)}
}

// Update replaces the client's token set.
func (s *Store) Update(client string, set Set) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[client] = set
}

// SetToken replaces a single token of the client's set, keeping the other
// members. Used when a refresh response returns only a subset of the triple.
func (s *Store) SetToken(client string, t Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[client]
	set.put(t)
	s.sets[client] = set
}

// Token returns the client's token of the given kind. The second return is
// false when the client has no set or the token has no value.
func (s *Store) Token(client string, k Kind) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[client]
	if !ok {
		return Token{}, false
	}
	t := set.Token(k)
	return t, t.Value != ""
}

// Set returns a copy of the client's full triple.
func (s *Store) Set(client string) (Set, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[client]
	return set, ok
}

// Authorized reports whether the client holds a complete triple with an access
// token that has not expired.
func (s *Store) Authorized(client string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[client]
	return ok && set.Complete() && set.Access.Valid()
}

// Clear drops the client's tokens.
func (s *Store) Clear(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, client)
}

// Reset drops every client's tokens.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = make(map[string]Set)
}
