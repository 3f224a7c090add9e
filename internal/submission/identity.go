package submission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mr1hm/go-lifeline/internal/kvstore"
)

const guestIDKey = "guest_id"

// Identity is whoever is raising the alert.
type Identity interface {
	SubjectID() string
	IsTemporary() bool
}

type StaticIdentity struct {
	ID        string
	Temporary bool
}

func (s StaticIdentity) SubjectID() string { return s.ID }
func (s StaticIdentity) IsTemporary() bool { return s.Temporary }

// UserLabel is the display name stored with an alert.
func UserLabel(id Identity) string {
	if id.IsTemporary() {
		return fmt.Sprintf("Guest (%s)", id.SubjectID())
	}
	return id.SubjectID()
}

// DeviceIdentity returns userID when set. Otherwise it returns a temporary
// identity whose id is generated once and kept in store.
func DeviceIdentity(ctx context.Context, store kvstore.Store, userID string, temporary bool) (StaticIdentity, error) {
	if userID != "" {
		return StaticIdentity{ID: userID, Temporary: temporary}, nil
	}

	var id string
	ok, err := store.Get(ctx, guestIDKey, &id)
	if err != nil {
		return StaticIdentity{}, fmt.Errorf("error loading guest id: %w", err)
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := store.Set(ctx, guestIDKey, id); err != nil {
			return StaticIdentity{}, fmt.Errorf("error saving guest id: %w", err)
		}
	}
	return StaticIdentity{ID: id, Temporary: true}, nil
}
