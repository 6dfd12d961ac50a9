// Package profile manages user accounts and their stat records: sign-up and
// sign-in, profile edits, stat resets, the family leaderboard and
// administrative account deletion.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

type Service struct {
	db     *sql.DB
	stores *store.Stores
	logger *slog.Logger
}

func NewService(db *sql.DB, logger *slog.Logger) *Service {
	return &Service{db: db, stores: store.New(db), logger: logger.With("component", "profile")}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperr.Validation("invalid email address")
	}
	return email, nil
}

func defaultName(name, email string) string {
	name = strings.TrimSpace(name)
	if name != "" {
		return name
	}
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}

// Register creates a password account with zero stats.
func (s *Service) Register(ctx context.Context, email, name, password string) (*model.Profile, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if errors.Is(err, auth.ErrPasswordTooShort) {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err != nil {
		return nil, err
	}

	existing, err := s.stores.Profiles.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.AlreadyProcessed("an account with that email already exists")
	}

	p, err := s.stores.Profiles.Create(ctx, email, defaultName(name, email), model.RoleChild, hash, nil)
	if err != nil {
		return nil, err
	}
	s.logger.Info("account registered", "user_id", p.ID)
	return p, nil
}

// Authenticate checks an email and password. Every failure reads the same.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*model.Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	p, err := s.stores.Profiles.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.New(apperr.KindUnauthenticated, "wrong email or password")
	}
	ok, err := auth.CheckPassword(p.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindUnauthenticated, "wrong email or password")
	}
	return p, nil
}

// EnsureForLogin returns the profile for a federated identity, creating it
// on first sign-in. An existing password account with the same email is
// linked to the identity.
func (s *Service) EnsureForLogin(ctx context.Context, id *auth.Identity) (*model.Profile, error) {
	p, err := s.stores.Profiles.GetByAuthUID(ctx, id.UID)
	if err != nil || p != nil {
		return p, err
	}

	email, err := normalizeEmail(id.Email)
	if err != nil {
		return nil, err
	}
	p, err = s.stores.Profiles.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if p != nil {
		if err := s.stores.Profiles.SetAuthUID(ctx, p.ID, id.UID); err != nil {
			return nil, err
		}
		s.logger.Info("identity linked", "user_id", p.ID)
		return s.stores.Profiles.GetByID(ctx, p.ID)
	}

	uid := id.UID
	p, err = s.stores.Profiles.Create(ctx, email, defaultName(id.Name, email), model.RoleChild, "", &uid)
	if err != nil {
		return nil, err
	}
	s.logger.Info("profile created at first login", "user_id", p.ID)
	return p, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*model.Profile, error) {
	p, err := s.stores.Profiles.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("profile not found")
	}
	return p, nil
}

// Update applies the caller's own edits. Profession can be set once.
func (s *Service) Update(ctx context.Context, ac auth.AuthContext, upd model.ProfileUpdate) (*model.Profile, error) {
	p, err := s.Get(ctx, ac.UserID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		p.Name = name
	}
	if upd.Profession != nil && *upd.Profession != p.Profession {
		if p.Profession != "" {
			return nil, apperr.Validation("profession cannot be changed once chosen")
		}
		p.Profession = *upd.Profession
	}
	if upd.CharacterAvatar != nil {
		p.CharacterAvatar = *upd.CharacterAvatar
	}
	if upd.CharacterBase != nil {
		p.CharacterBase = *upd.CharacterBase
	}
	if upd.Gender != nil {
		p.Gender = *upd.Gender
	}
	return s.stores.Profiles.UpdateDetails(ctx, p)
}

// ResetStats zeroes a user's xp and coins. Allowed for a root of the user's
// family or a super root.
func (s *Service) ResetStats(ctx context.Context, ac auth.AuthContext, userID int64) (*model.Profile, error) {
	target, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ac.IsSuperRoot && !(ac.IsRoot && ac.HasFamily() && target.InFamily(ac.FamilyID)) {
		return nil, apperr.PermissionDenied("only a family root can reset stats")
	}
	if err := s.stores.Profiles.ResetStats(ctx, userID); err != nil {
		return nil, err
	}
	s.logger.Info("stats reset", "user_id", userID, "by", ac.UserID)
	return s.stores.Profiles.GetByID(ctx, userID)
}

func (s *Service) Leaderboard(ctx context.Context, ac auth.AuthContext) ([]model.LeaderboardEntry, error) {
	if !ac.HasFamily() {
		return nil, apperr.Validation("join a family first")
	}
	members, err := s.stores.Profiles.ListByFamily(ctx, ac.FamilyID)
	if err != nil {
		return nil, err
	}
	board := make([]model.LeaderboardEntry, 0, len(members))
	for _, m := range members {
		board = append(board, model.LeaderboardEntry{
			UserID: m.ID,
			Name:   m.Name,
			XP:     m.XP,
			Coins:  m.Coins,
			Level:  m.Level(),
		})
	}
	return board, nil
}

// DeleteAccount removes another account, found by email or auth uid. The
// caller must be a root; the target may not be the caller or another root.
func (s *Service) DeleteAccount(ctx context.Context, ac auth.AuthContext, email, uid string) error {
	if !ac.IsRoot && !ac.IsSuperRoot {
		return apperr.PermissionDenied("only a root can delete accounts")
	}

	var target *model.Profile
	var err error
	switch {
	case uid != "":
		target, err = s.stores.Profiles.GetByAuthUID(ctx, uid)
	case email != "":
		target, err = s.stores.Profiles.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	default:
		return apperr.Validation("email or uid is required")
	}
	if err != nil {
		return err
	}
	if target == nil {
		return apperr.NotFound("account not found")
	}
	if target.ID == ac.UserID {
		return apperr.PermissionDenied("you cannot delete your own account here")
	}
	if target.IsRoot || target.IsSuperRoot {
		return apperr.PermissionDenied("root accounts cannot be deleted")
	}
	if !ac.IsSuperRoot && !target.InFamily(ac.FamilyID) {
		return apperr.NotFound("account not found")
	}

	err = store.InTx(ctx, s.db, func(tx *store.Stores) error {
		if target.FamilyID != nil {
			if err := tx.Families.AdjustMemberCount(ctx, *target.FamilyID, -1); err != nil {
				return err
			}
		}
		return tx.Profiles.Delete(ctx, target.ID)
	})
	if err != nil {
		return err
	}
	s.logger.Info("account deleted", "user_id", target.ID, "by", ac.UserID)
	return nil
}
