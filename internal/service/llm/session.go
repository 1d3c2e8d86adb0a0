package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/avdeenko/trailmate/internal/model/chat"
	"github.com/avdeenko/trailmate/internal/model/profile"
)

// Fallback texts returned to the user when a completion fails. Failures
// never propagate out of GetResponse.
const (
	quotaFallback   = "Looks like you have reached your limit. Please, return later."
	genericFallback = "Looks like something is wrong. Please, try again later."
)

// Session owns one running conversation: the transcript, the active
// character and persona, and a lazily built model completer. A session
// lives as long as the user keeps the same character+persona pairing and
// is replaced when they start a fresh chat.
//
// All methods are safe for concurrent use; GetResponse calls on the same
// session are serialized so the transcript stays a faithful log.
type Session struct {
	mu sync.Mutex

	credential string
	character  *profile.Profile
	persona    *profile.Profile

	characterInfo string
	history       []chat.Turn

	factory   CompleterFactory
	completer Completer
}

// NewSession builds a session for the given credential and profile
// selection. Profiles are copied; nil means not selected. No model client
// is constructed until the first GetResponse.
func NewSession(credential string, character, persona *profile.Profile, factory CompleterFactory) *Session {
	s := &Session{
		credential: credential,
		factory:    factory,
	}
	s.setProfiles(character, persona)
	return s
}

// setProfiles stores profile copies, recomputes the composed info block
// and drops the bound completer. Callers hold the mutex (or own the
// session exclusively during construction).
func (s *Session) setProfiles(character, persona *profile.Profile) {
	s.character = copyProfile(character)
	s.persona = copyProfile(persona)
	s.characterInfo = ComposeProfileInfo(s.character, s.persona)
	s.completer = nil
}

func copyProfile(p *profile.Profile) *profile.Profile {
	if p == nil {
		return nil
	}
	copied := *p
	return &copied
}

// ensureReady binds a completer to the current system prompt, moving the
// session from uninitialized to ready.
func (s *Session) ensureReady(ctx context.Context) error {
	if s.completer != nil {
		return nil
	}

	systemPrompt := baseInstruction
	if s.characterInfo != "" {
		systemPrompt = baseInstruction + "\n\n" + s.characterInfo
	}

	completer, err := s.factory(ctx, s.credential, systemPrompt)
	if err != nil {
		return fmt.Errorf("init completer: %w", err)
	}

	s.completer = completer
	return nil
}

// GetResponse sends the user message to the model and returns the reply
// text, or a fallback text when the completion fails. The user turn is
// always recorded; the assistant turn only on success.
func (s *Session) GetResponse(ctx context.Context, userMessage string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureReady(ctx); err != nil {
		log.Printf("[llm] session init failed: %v", err)
		return genericFallback
	}

	s.history = append(s.history, chat.Turn{Role: chat.RoleUser, Content: userMessage})
	prior := s.history[:len(s.history)-1]

	reply, err := s.completer.Complete(ctx, prior, userMessage)
	if err != nil {
		if errors.Is(err, ErrQuotaExceeded) {
			log.Printf("[llm] completion rejected by quota: %v", err)
			return quotaFallback
		}
		log.Printf("[llm] completion failed: %v", err)
		return genericFallback
	}

	s.history = append(s.history, chat.Turn{Role: chat.RoleAssistant, Content: reply})
	return reply
}

// AddToHistory appends one turn to the transcript.
func (s *Session) AddToHistory(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, chat.Turn{Role: role, Content: content})
}

// UpdateCharacter swaps the active character and invalidates the bound
// completer. The transcript is kept.
func (s *Session) UpdateCharacter(character *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setProfiles(character, s.persona)
}

// UpdatePersona swaps the active persona and invalidates the bound
// completer. The transcript is kept.
func (s *Session) UpdatePersona(persona *profile.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setProfiles(s.character, persona)
}

// ClearHistory drops the transcript. Profile selection and completer
// readiness are unaffected.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// History returns a copy of the transcript in insertion order.
func (s *Session) History() []chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]chat.Turn, len(s.history))
	copy(copied, s.history)
	return copied
}

// Character returns a copy of the active character, nil when unset.
func (s *Session) Character() *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.character)
}

// Persona returns a copy of the active persona, nil when unset.
func (s *Session) Persona() *profile.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProfile(s.persona)
}
