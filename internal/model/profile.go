package model

import "time"

type Role string

const (
	RoleParent Role = "parent"
	RoleChild  Role = "child"
)

func (r Role) Valid() bool {
	return r == RoleParent || r == RoleChild
}

// XPPerLevel is the XP span of one level.
const XPPerLevel = 1000

// Profile is the stat record behind a user account.
type Profile struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Email           string    `json:"email"`
	XP              int       `json:"xp"`
	Coins           int       `json:"coins"`
	Role            Role      `json:"role"`
	IsRoot          bool      `json:"is_root"`
	IsSuperRoot     bool      `json:"is_super_root"`
	FamilyID        *int64    `json:"family_id"`
	CharacterAvatar string    `json:"character_avatar"`
	CharacterBase   string    `json:"character_base"`
	Profession      string    `json:"profession"`
	Gender          string    `json:"gender"`
	AuthUID         *string   `json:"-"`
	PasswordHash    string    `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Level is derived from XP for display.
func (p Profile) Level() int {
	return p.XP/XPPerLevel + 1
}

// InFamily reports whether the profile belongs to the given family.
func (p Profile) InFamily(familyID int64) bool {
	return p.FamilyID != nil && *p.FamilyID == familyID
}

// ProfileUpdate carries the fields a user may edit on their own profile. Nil
// means unchanged. Role is not among them; see family.Registry.SetRole.
type ProfileUpdate struct {
	Name            *string `json:"name"`
	CharacterAvatar *string `json:"character_avatar"`
	CharacterBase   *string `json:"character_base"`
	Profession      *string `json:"profession"`
	Gender          *string `json:"gender"`
}

// LeaderboardEntry is one row of a family ranking.
type LeaderboardEntry struct {
	UserID int64  `json:"user_id"`
	Name   string `json:"name"`
	XP     int    `json:"xp"`
	Coins  int    `json:"coins"`
	Level  int    `json:"level"`
}
