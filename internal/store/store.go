package store

import (
	"context"
	"errors"

	"github.com/avdeenko/trailmate/internal/model/profile"
	"github.com/avdeenko/trailmate/internal/model/user"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrProfileNotFound = errors.New("profile not found")
)

// Repository is the persistence boundary for users, their model
// credentials and their prompt profiles. All lookups key on the external
// chat-platform account id.
type Repository interface {
	EnsureUser(ctx context.Context, platformID int64) (*user.User, error)
	GetUser(ctx context.Context, platformID int64) (*user.User, error)
	SetCredential(ctx context.Context, platformID int64, credential string) error
	GetCredential(ctx context.Context, platformID int64) (string, error)

	CreateCharacter(ctx context.Context, platformID int64, name, prompt string) (*profile.Profile, error)
	ListCharacters(ctx context.Context, platformID int64) ([]profile.Profile, error)
	DeleteCharacter(ctx context.Context, platformID, characterID int64) error

	CreatePersona(ctx context.Context, platformID int64, name, prompt string) (*profile.Profile, error)
	ListPersonas(ctx context.Context, platformID int64) ([]profile.Profile, error)
	DeletePersona(ctx context.Context, platformID, personaID int64) error

	Ping(ctx context.Context) error
	Close() error
}
