package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/avdeenko/trailmate/internal/model/profile"
	"github.com/avdeenko/trailmate/internal/service/llm"
	"github.com/avdeenko/trailmate/internal/store"
)

// Guard errors for sends attempted before the conversation is set up.
var (
	ErrNoCharacter  = errors.New("no active character")
	ErrNoPersona    = errors.New("no active persona")
	ErrNoSelection  = errors.New("no active character or persona")
	ErrNoCredential = errors.New("no stored credential")
)

// Manager keeps one logical conversation per user: the active
// character/persona selection and the live model session built from it.
// Sessions are created lazily on the first send and dropped on reset or
// credential change.
type Manager struct {
	mu      sync.Mutex
	repo    store.Repository
	factory llm.CompleterFactory
	states  map[int64]*state
}

type state struct {
	character *profile.Profile
	persona   *profile.Profile
	session   *llm.Session
}

// NewManager wires the conversation manager to its profile store and
// completer factory.
func NewManager(repo store.Repository, factory llm.CompleterFactory) *Manager {
	return &Manager{
		repo:    repo,
		factory: factory,
		states:  make(map[int64]*state),
	}
}

func (m *Manager) state(platformID int64) *state {
	st, ok := m.states[platformID]
	if !ok {
		st = &state{}
		m.states[platformID] = st
	}
	return st
}

// SelectCharacter activates one of the user's saved characters. A live
// session keeps its transcript and picks up the new character on the next
// send.
func (m *Manager) SelectCharacter(ctx context.Context, platformID, characterID int64) (*profile.Profile, error) {
	characters, err := m.repo.ListCharacters(ctx, platformID)
	if err != nil {
		return nil, fmt.Errorf("list characters: %w", err)
	}

	selected := findProfile(characters, characterID)
	if selected == nil {
		return nil, store.ErrProfileNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(platformID)
	st.character = selected
	if st.session != nil {
		st.session.UpdateCharacter(selected)
	}
	return selected, nil
}

// SelectPersona activates one of the user's saved personas.
func (m *Manager) SelectPersona(ctx context.Context, platformID, personaID int64) (*profile.Profile, error) {
	personas, err := m.repo.ListPersonas(ctx, platformID)
	if err != nil {
		return nil, fmt.Errorf("list personas: %w", err)
	}

	selected := findProfile(personas, personaID)
	if selected == nil {
		return nil, store.ErrProfileNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(platformID)
	st.persona = selected
	if st.session != nil {
		st.session.UpdatePersona(selected)
	}
	return selected, nil
}

func findProfile(profiles []profile.Profile, id int64) *profile.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}

// checkSelection mirrors the original conversation guards: a send needs
// both a character and a persona.
func checkSelection(st *state) error {
	switch {
	case st.character == nil && st.persona == nil:
		return ErrNoSelection
	case st.character == nil:
		return ErrNoCharacter
	case st.persona == nil:
		return ErrNoPersona
	}
	return nil
}

// Send delivers the user message to their live session, constructing one
// from the stored credential and active selection when needed, and returns
// the reply text. The manager lock is released before the model round trip;
// per-session serialization is the session's own concern.
func (m *Manager) Send(ctx context.Context, platformID int64, text string) (string, error) {
	session, err := m.sessionFor(ctx, platformID)
	if err != nil {
		return "", err
	}
	return session.GetResponse(ctx, text), nil
}

func (m *Manager) sessionFor(ctx context.Context, platformID int64) (*llm.Session, error) {
	m.mu.Lock()
	st := m.state(platformID)
	if err := checkSelection(st); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if st.session != nil {
		session := st.session
		m.mu.Unlock()
		return session, nil
	}
	character, persona := st.character, st.persona
	m.mu.Unlock()

	credential, err := m.repo.GetCredential(ctx, platformID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}
	if credential == "" {
		return nil, ErrNoCredential
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another request may have built the session while the lock was
	// released; keep the first one so its transcript survives.
	st = m.state(platformID)
	if st.session == nil {
		st.session = llm.NewSession(credential, character, persona, m.factory)
	}
	return st.session, nil
}

// Reset discards the live session so the next send starts a fresh chat
// with the current selection. The selection itself must already be
// complete, matching the original new-chat flow.
func (m *Manager) Reset(platformID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(platformID)
	if err := checkSelection(st); err != nil {
		return err
	}
	st.session = nil
	return nil
}

// ClearHistory empties the live session's transcript. Without a live
// session there is nothing to clear.
func (m *Manager) ClearHistory(platformID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[platformID]; ok && st.session != nil {
		st.session.ClearHistory()
	}
}

// InvalidateCredential drops the live session so the next send picks up a
// freshly stored API key. The selection is kept.
func (m *Manager) InvalidateCredential(platformID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if st, ok := m.states[platformID]; ok {
		st.session = nil
	}
}

// Status reports the active selection for the user.
type Status struct {
	Character string `json:"character,omitempty"`
	Persona   string `json:"persona,omitempty"`
}

// Status returns the names of the active character and persona, empty
// strings when unset.
func (m *Manager) Status(platformID int64) Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	var status Status
	if st, ok := m.states[platformID]; ok {
		if st.character != nil {
			status.Character = st.character.Name
		}
		if st.persona != nil {
			status.Persona = st.persona.Name
		}
	}
	return status
}
