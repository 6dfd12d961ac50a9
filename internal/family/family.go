// Package family manages families: creation with join and root codes,
// joining, root elevation and super-root grants.
package family

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

const (
	CodeLength      = 6
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxCodeAttempts = 10
)

type Registry struct {
	db      *sql.DB
	stores  *store.Stores
	logger  *slog.Logger
	newCode func() (string, error)
}

func NewRegistry(db *sql.DB, logger *slog.Logger) *Registry {
	return &Registry{
		db:      db,
		stores:  store.New(db),
		logger:  logger.With("component", "family"),
		newCode: GenerateCode,
	}
}

// GenerateCode returns a random code of uppercase letters and digits.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NormalizeCode upper-cases and validates a user-supplied code.
func NormalizeCode(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != CodeLength {
		return "", apperr.Validation("codes are %d characters", CodeLength)
	}
	for _, c := range code {
		if !strings.ContainsRune(codeAlphabet, c) {
			return "", apperr.Validation("codes use only letters and digits")
		}
	}
	return code, nil
}

// CreateInput carries the optional custom codes for a new family.
type CreateInput struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	RootCode string `json:"root_code"`
}

// Create makes a new family with the caller as its first root. A custom join
// code held by a family without any root reclaims that family.
func (r *Registry) Create(ctx context.Context, ac auth.AuthContext, in CreateInput) (*model.Family, error) {
	if ac.HasFamily() {
		return nil, apperr.AlreadyProcessed("you already belong to a family")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("family name is required")
	}

	var code, rootCode string
	var err error
	if in.Code != "" {
		if code, err = NormalizeCode(in.Code); err != nil {
			return nil, err
		}
	}
	if in.RootCode != "" {
		if rootCode, err = NormalizeCode(in.RootCode); err != nil {
			return nil, err
		}
	}
	if code != "" && code == rootCode {
		return nil, apperr.Validation("join code and root code must differ")
	}

	var created *model.Family
	err = store.InTx(ctx, r.db, func(tx *store.Stores) error {
		c, rc := code, rootCode
		var err error
		if rc != "" {
			used, err := tx.Families.CodeInUse(ctx, rc)
			if err != nil {
				return err
			}
			if used {
				return apperr.Validation("root code %s is already taken", rc)
			}
		} else if rc, err = r.freeCode(ctx, tx, c); err != nil {
			return err
		}

		if c != "" {
			if err := r.claimCode(ctx, tx, c); err != nil {
				return err
			}
		} else if c, err = r.freeCode(ctx, tx, rc); err != nil {
			return err
		}

		f, err := tx.Families.Create(ctx, name, c, rc, ac.UserID)
		if err != nil {
			return err
		}
		if err := tx.Profiles.SetFamily(ctx, ac.UserID, &f.ID); err != nil {
			return err
		}
		if err := tx.Profiles.SetRoot(ctx, ac.UserID, true); err != nil {
			return err
		}
		if err := tx.Profiles.SetRole(ctx, ac.UserID, model.RoleParent); err != nil {
			return err
		}
		created = f
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("family created", "family_id", created.ID, "created_by", ac.UserID)
	return created, nil
}

// claimCode makes a custom join code available. A family already holding
// it is deleted when it has no root left; otherwise the code is taken.
func (r *Registry) claimCode(ctx context.Context, tx *store.Stores, code string) error {
	if f, err := tx.Families.GetByRootCode(ctx, code); err != nil {
		return err
	} else if f != nil {
		return apperr.Validation("code %s is already taken", code)
	}

	existing, err := tx.Families.GetByCode(ctx, code)
	if err != nil || existing == nil {
		return err
	}
	roots, err := tx.Profiles.CountRoots(ctx, existing.ID)
	if err != nil {
		return err
	}
	if roots > 0 {
		return apperr.Validation("code %s is already taken", code)
	}

	if err := tx.Profiles.ClearFamily(ctx, existing.ID); err != nil {
		return err
	}
	if err := tx.Families.Delete(ctx, existing.ID); err != nil {
		return err
	}
	r.logger.Info("family reclaimed", "family_id", existing.ID, "code", code)
	return nil
}

// freeCode generates a code unused by any family and different from avoid.
func (r *Registry) freeCode(ctx context.Context, tx *store.Stores, avoid string) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := r.newCode()
		if err != nil {
			return "", err
		}
		if code == avoid {
			continue
		}
		used, err := tx.Families.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !used {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free family code after %d attempts", maxCodeAttempts)
}

// JoinByCode adds the caller to the family with the given join code.
func (r *Registry) JoinByCode(ctx context.Context, ac auth.AuthContext, code string) (*model.Family, error) {
	if ac.HasFamily() {
		return nil, apperr.AlreadyProcessed("you already belong to a family")
	}
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	var joined *model.Family
	err = store.InTx(ctx, r.db, func(tx *store.Stores) error {
		f, err := tx.Families.GetByCode(ctx, code)
		if err != nil {
			return err
		}
		if f == nil {
			return apperr.NotFound("no family uses code %s", code)
		}
		if err := tx.Profiles.SetFamily(ctx, ac.UserID, &f.ID); err != nil {
			return err
		}
		if err := tx.Families.AdjustMemberCount(ctx, f.ID, 1); err != nil {
			return err
		}
		joined, err = tx.Families.GetByID(ctx, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("family joined", "family_id", joined.ID, "user_id", ac.UserID)
	pub := joined.Public()
	return &pub, nil
}

// ElevateWithRootCode makes the caller a root of the family owning rootCode,
// joining it first when the caller has no family.
func (r *Registry) ElevateWithRootCode(ctx context.Context, ac auth.AuthContext, rootCode string) (*model.Family, error) {
	rootCode, err := NormalizeCode(rootCode)
	if err != nil {
		return nil, err
	}

	var fam *model.Family
	err = store.InTx(ctx, r.db, func(tx *store.Stores) error {
		f, err := tx.Families.GetByRootCode(ctx, rootCode)
		if err != nil {
			return err
		}
		if f == nil {
			return apperr.NotFound("no family uses that root code")
		}
		if ac.HasFamily() && ac.FamilyID != f.ID {
			return apperr.AlreadyProcessed("you already belong to another family")
		}
		if !ac.HasFamily() {
			if err := tx.Profiles.SetFamily(ctx, ac.UserID, &f.ID); err != nil {
				return err
			}
			if err := tx.Families.AdjustMemberCount(ctx, f.ID, 1); err != nil {
				return err
			}
		}
		if err := tx.Profiles.SetRoot(ctx, ac.UserID, true); err != nil {
			return err
		}
		fam, err = tx.Families.GetByID(ctx, f.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("root elevated", "family_id", fam.ID, "user_id", ac.UserID)
	return fam, nil
}

// Get returns the caller's family. Only roots see the root code.
func (r *Registry) Get(ctx context.Context, ac auth.AuthContext) (*model.Family, error) {
	if !ac.HasFamily() {
		return nil, apperr.NotFound("you have not joined a family")
	}
	f, err := r.stores.Families.GetByID(ctx, ac.FamilyID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.NotFound("family not found")
	}
	if !ac.IsRoot {
		pub := f.Public()
		return &pub, nil
	}
	return f, nil
}

func (r *Registry) Members(ctx context.Context, ac auth.AuthContext) ([]model.Profile, error) {
	if !ac.HasFamily() {
		return nil, apperr.NotFound("you have not joined a family")
	}
	return r.stores.Profiles.ListByFamily(ctx, ac.FamilyID)
}

// SetRole switches a member between parent and child. A family root may
// change members of their own family; a super root anyone.
func (r *Registry) SetRole(ctx context.Context, ac auth.AuthContext, userID int64, role model.Role) (*model.Profile, error) {
	if !role.Valid() {
		return nil, apperr.Validation("unknown role %q", role)
	}
	if !ac.IsSuperRoot && !(ac.IsRoot && ac.HasFamily()) {
		return nil, apperr.PermissionDenied("only a family root can change roles")
	}
	p, err := r.stores.Profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil || (!ac.IsSuperRoot && !p.InFamily(ac.FamilyID)) {
		return nil, apperr.NotFound("user not found")
	}
	if err := r.stores.Profiles.SetRole(ctx, userID, role); err != nil {
		return nil, err
	}
	r.logger.Info("role changed", "user_id", userID, "role", role, "by", ac.UserID)
	return r.stores.Profiles.GetByID(ctx, userID)
}

// SetRoot grants or revokes root on any user. Super roots only.
func (r *Registry) SetRoot(ctx context.Context, ac auth.AuthContext, userID int64, isRoot bool) (*model.Profile, error) {
	if !ac.IsSuperRoot {
		return nil, apperr.PermissionDenied("only a super root can change roots")
	}
	p, err := r.stores.Profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("user not found")
	}
	if err := r.stores.Profiles.SetRoot(ctx, userID, isRoot); err != nil {
		return nil, err
	}
	r.logger.Info("root changed", "user_id", userID, "is_root", isRoot, "by", ac.UserID)
	return r.stores.Profiles.GetByID(ctx, userID)
}
