package auth

import (
	"context"
	"time"

	"github.com/dukerupert/chorequest/internal/model"
)

type contextKey struct{}

// AuthContext identifies the caller of a service operation. It is built by
// the auth middleware from the session and the stored profile.
type AuthContext struct {
	UserID      int64
	FamilyID    int64 // 0 when the user has not joined a family
	Role        model.Role
	IsRoot      bool
	IsSuperRoot bool
	SessionID   int64
	// Location is the caller's time zone; calendar dates are derived in it.
	Location *time.Location
}

// FromProfile builds an AuthContext for p.
func FromProfile(p *model.Profile, sessionID int64, loc *time.Location) AuthContext {
	ac := AuthContext{
		UserID:      p.ID,
		Role:        p.Role,
		IsRoot:      p.IsRoot,
		IsSuperRoot: p.IsSuperRoot,
		SessionID:   sessionID,
		Location:    loc,
	}
	if p.FamilyID != nil {
		ac.FamilyID = *p.FamilyID
	}
	return ac
}

func (ac AuthContext) HasFamily() bool {
	return ac.FamilyID != 0
}

func (ac AuthContext) IsParent() bool {
	return ac.Role == model.RoleParent
}

// Loc returns the caller's location, or UTC if none was set.
func (ac AuthContext) Loc() *time.Location {
	if ac.Location == nil {
		return time.UTC
	}
	return ac.Location
}

// Today returns the caller-local calendar date of now.
func (ac AuthContext) Today(now time.Time) string {
	return now.In(ac.Loc()).Format(model.DateLayout)
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func FamilyID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.FamilyID
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

func IsRoot(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	if !ok {
		return false
	}
	return ac.IsRoot
}
