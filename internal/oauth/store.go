package oauth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// expiryBuffer is how long before actual expiry a token is already
// treated as expired, so refreshes happen ahead of time.
const expiryBuffer = 5 * time.Minute

// Store persists one oauth2 token per service in a JSON file. The file is
// the only thing this application ever persists about authentication.
type Store struct {
	path   string
	tokens map[string]*oauth2.Token
}

// LoadStore reads the token file, starting empty when it doesn't exist
// yet. Files written before tokens were namespaced under a "tokens" key
// are migrated on read.
func LoadStore(path string) (*Store, error) {
	s := &Store{
		path:   path,
		tokens: map[string]*oauth2.Token{},
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading token file: %w", err)
	}

	var envelope struct {
		Tokens map[string]*oauth2.Token `json:"tokens"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("error parsing token file: %s", err)
	}
	if envelope.Tokens != nil {
		s.tokens = envelope.Tokens
		return s, nil
	}

	// Old format: tokens at the top level.
	if err := json.Unmarshal(raw, &s.tokens); err != nil {
		return nil, fmt.Errorf("error parsing legacy token file: %s", err)
	}

	return s, nil
}

// Save writes the store back to disk, creating the directory if needed.
func (s *Store) Save() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("error creating token directory: %s", err)
	}

	out, err := json.MarshalIndent(struct {
		Tokens map[string]*oauth2.Token `json:"tokens"`
	}{Tokens: s.tokens}, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding tokens: %s", err)
	}

	if err := os.WriteFile(s.path, out, 0o600); err != nil {
		return fmt.Errorf("error writing token file: %s", err)
	}

	return nil
}

// Token returns the stored token for a service, nil when absent.
func (s *Store) Token(service string) *oauth2.Token {
	return s.tokens[service]
}

// SetToken stores a token and persists the file.
func (s *Store) SetToken(service string, tok *oauth2.Token) error {
	s.tokens[service] = tok
	return s.Save()
}

// Expired reports whether the service's token is missing, expired, or
// expiring within the buffer. A token without expiry information counts
// as expired: it might be, and assuming so is the safe direction.
func (s *Store) Expired(service string) bool {
	tok := s.tokens[service]
	if tok == nil || tok.AccessToken == "" {
		return true
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return time.Now().After(tok.Expiry.Add(-expiryBuffer))
}
