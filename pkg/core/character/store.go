// Package character persists the user's reusable personas.
package character

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core"
	"github.com/Linkxee-Tech/CartoonLinkxee-AI/pkg/core/types"
)

// IDPrefix starts every generated character id.
const IDPrefix = "char_"

// Store lists, saves and deletes characters. List returns characters in
// creation order.
type Store interface {
	List(ctx context.Context) ([]types.Character, error)
	Get(ctx context.Context, id string) (types.Character, error)
	Save(ctx context.Context, c types.Character) (types.Character, error)
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh character id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

// Merge overlays the non-empty fields of update onto base.
func Merge(base, update types.Character) types.Character {
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&base.Name, update.Name)
	set(&base.Role, update.Role)
	set(&base.Personality, update.Personality)
	set(&base.Style, update.Style)
	if update.VoiceType != "" {
		base.VoiceType = update.VoiceType
	}
	if update.ID != "" {
		base.ID = update.ID
	}
	return base
}

func validate(c types.Character) error {
	if err := c.Validate(); err != nil {
		return core.NewInvalidRequestError(err.Error())
	}
	return nil
}

func notFound(id string) error {
	return core.NewNotFoundError("character " + id + " not found")
}
