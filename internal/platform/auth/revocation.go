package auth

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// accountCutoff rejects every token of an account issued at or before at.
type accountCutoff struct {
	at    time.Time
	until time.Time
}

// RevocationList holds signed-out token ids and per-account cutoffs in memory.
// Entries are dropped once every token they could match has expired on its own.
// Safe for concurrent use.
type RevocationList struct {
	mu       sync.RWMutex
	tokens   map[string]time.Time // jti -> token expiry
	accounts map[uuid.UUID]accountCutoff
	ttl      time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewRevocationList creates a list for tokens that live at most ttl and starts
// a goroutine that prunes expired entries every 5 minutes.
func NewRevocationList(ttl time.Duration) *RevocationList {
	l := &RevocationList{
		tokens:   make(map[string]time.Time),
		accounts: make(map[uuid.UUID]accountCutoff),
		ttl:      ttl,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// RevokeToken rejects a single token until its own expiry.
func (l *RevocationList) RevokeToken(jti string, expiresAt time.Time) {
	if jti == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[jti] = expiresAt
}

// RevokeAccount rejects every token issued to the account up to now. Token
// issue times have second precision, so a token minted in the same second as
// the cutoff is rejected too.
func (l *RevocationList) RevokeAccount(accountID uuid.UUID) {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[accountID] = accountCutoff{at: now.Truncate(time.Second), until: now.Add(l.ttl)}
}

// IsRevoked reports whether s was signed out or issued before its account's cutoff.
func (l *RevocationList) IsRevoked(s *Session) bool {
	if s == nil {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.tokens[s.TokenID]; ok && s.TokenID != "" {
		return true
	}
	if cut, ok := l.accounts[s.AccountID]; ok && !s.IssuedAt.After(cut.at) {
		return true
	}
	return false
}

func (l *RevocationList) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.tokens) + len(l.accounts)
}

// RevocationInfo is one entry as listed to admins.
type RevocationInfo struct {
	Kind      string    `json:"kind"` // "token" or "account"
	ID        string    `json:"id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Entries returns a snapshot of all current entries.
func (l *RevocationList) Entries() []RevocationInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]RevocationInfo, 0, len(l.tokens)+len(l.accounts))
	for jti, exp := range l.tokens {
		result = append(result, RevocationInfo{Kind: "token", ID: jti, ExpiresAt: exp})
	}
	for id, cut := range l.accounts {
		result = append(result, RevocationInfo{Kind: "account", ID: id.String(), ExpiresAt: cut.until})
	}
	return result
}

// Close stops the cleanup goroutine. Safe to call more than once.
func (l *RevocationList) Close() {
	select {
	case <-l.done:
	default:
		close(l.done)
	}
}

func (l *RevocationList) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.cleanup()
		}
	}
}

func (l *RevocationList) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for jti, exp := range l.tokens {
		if now.After(exp) {
			delete(l.tokens, jti)
		}
	}
	for id, cut := range l.accounts {
		if now.After(cut.until) {
			delete(l.accounts, id)
		}
	}
}
