package family

import (
	"context"
	"fmt"
	"testing"

	"github.com/dukerupert/chorequest/internal/apperr"
	"github.com/dukerupert/chorequest/internal/auth"
	"github.com/dukerupert/chorequest/internal/database"
	"github.com/dukerupert/chorequest/internal/logging"
	"github.com/dukerupert/chorequest/internal/model"
	"github.com/dukerupert/chorequest/internal/store"
)

func setup(t *testing.T) (*Registry, *store.Stores) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewRegistry(db, logging.Discard()), store.New(db)
}

// user creates a profile and returns a fresh AuthContext for it.
func user(t *testing.T, s *store.Stores, email string) auth.AuthContext {
	t.Helper()
	p, err := s.Profiles.Create(context.Background(), email, email, model.RoleChild, "h", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return auth.FromProfile(p, 0, nil)
}

// reload refreshes an AuthContext from the stored profile.
func reload(t *testing.T, s *store.Stores, ac auth.AuthContext) auth.AuthContext {
	t.Helper()
	p, err := s.Profiles.GetByID(context.Background(), ac.UserID)
	if err != nil || p == nil {
		t.Fatalf("reload user %d: %v", ac.UserID, err)
	}
	return auth.FromProfile(p, 0, nil)
}

func TestGenerateCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, err := NormalizeCode(code); err != nil {
			t.Fatalf("generated code %q invalid: %v", code, err)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{" abc123 ", "ABC123", false},
		{"ABC12", "", true},
		{"ABC-12", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeCode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeCode(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateMakesCallerRoot(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()
	ac := user(t, s, "mom@example.com")

	f, err := r.Create(ctx, ac, CreateInput{Name: "Nguyen"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if f.Code == f.RootCode || len(f.Code) != CodeLength || len(f.RootCode) != CodeLength {
		t.Errorf("codes = %q/%q", f.Code, f.RootCode)
	}
	if f.MemberCount != 1 {
		t.Errorf("member_count = %d, want 1", f.MemberCount)
	}

	p, _ := s.Profiles.GetByID(ctx, ac.UserID)
	if !p.IsRoot || p.Role != model.RoleParent || !p.InFamily(f.ID) {
		t.Errorf("creator = %+v, want root parent in family", p)
	}

	_, err = r.Create(ctx, reload(t, s, ac), CreateInput{Name: "Second"})
	if apperr.KindOf(err) != apperr.KindAlreadyProcessed {
		t.Errorf("err = %v, want AlreadyProcessed", err)
	}
}

func TestCodesArePairwiseDistinct(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		ac := user(t, s, fmt.Sprintf("u%d@example.com", i))
		f, err := r.Create(ctx, ac, CreateInput{Name: "F"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		for _, c := range []string{f.Code, f.RootCode} {
			if seen[c] {
				t.Fatalf("code %q reused", c)
			}
			seen[c] = true
		}
	}
}

func TestGeneratedCollisionRetries(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	seq := []string{"AAAAAA", "BBBBBB", "AAAAAA", "BBBBBB", "CCCCCC", "DDDDDD"}
	r.newCode = func() (string, error) {
		c := seq[0]
		seq = seq[1:]
		return c, nil
	}

	first, err := r.Create(ctx, user(t, s, "a@example.com"), CreateInput{Name: "A"})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := r.Create(ctx, user(t, s, "b@example.com"), CreateInput{Name: "B"})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if first.RootCode != "AAAAAA" || first.Code != "BBBBBB" {
		t.Errorf("first = %s/%s", first.Code, first.RootCode)
	}
	if second.RootCode != "CCCCCC" || second.Code != "DDDDDD" {
		t.Errorf("second = %s/%s", second.Code, second.RootCode)
	}
}

func TestCustomCodeCollisions(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	owner := user(t, s, "owner@example.com")
	if _, err := r.Create(ctx, owner, CreateInput{Name: "Old", Code: "FAMILY", RootCode: "SECRET"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err := r.Create(ctx, user(t, s, "x@example.com"), CreateInput{Name: "X", Code: "FAMILY"})
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Errorf("code held by a rooted family: err = %v, want ValidationFailed", err)
	}

	_, err = r.Create(ctx, user(t, s, "y@example.com"), CreateInput{Name: "Y", RootCode: "SECRET"})
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Errorf("root code collision: err = %v, want ValidationFailed", err)
	}

	_, err = r.Create(ctx, user(t, s, "z@example.com"), CreateInput{Name: "Z", Code: "SAME11", RootCode: "same11"})
	if apperr.KindOf(err) != apperr.KindValidationFailed {
		t.Errorf("equal codes: err = %v, want ValidationFailed", err)
	}
}

func TestCustomCodeReclaimsRootlessFamily(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	owner := user(t, s, "owner@example.com")
	old, err := r.Create(ctx, owner, CreateInput{Name: "Old", Code: "FAMILY"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Profiles.SetRoot(ctx, owner.UserID, false); err != nil {
		t.Fatalf("drop root: %v", err)
	}

	newcomer := user(t, s, "new@example.com")
	f, err := r.Create(ctx, newcomer, CreateInput{Name: "New", Code: "family"})
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if f.Code != "FAMILY" || f.ID == old.ID {
		t.Errorf("new family = %+v", f)
	}

	gone, _ := s.Families.GetByID(ctx, old.ID)
	if gone != nil {
		t.Error("old family should be deleted")
	}
	p, _ := s.Profiles.GetByID(ctx, owner.UserID)
	if p.FamilyID != nil {
		t.Errorf("old member family = %d, want nil", *p.FamilyID)
	}
}

func TestJoinByCode(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	f, err := r.Create(ctx, user(t, s, "mom@example.com"), CreateInput{Name: "Fam"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	kid := user(t, s, "kid@example.com")
	_, err = r.JoinByCode(ctx, kid, "ZZZZZZ")
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("unknown code: err = %v, want NotFound", err)
	}
	_, err = r.JoinByCode(ctx, kid, f.RootCode)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("root code as join code: err = %v, want NotFound", err)
	}

	joined, err := r.JoinByCode(ctx, kid, f.Code)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.MemberCount != 2 || joined.RootCode != "" {
		t.Errorf("joined = %+v, want 2 members and hidden root code", joined)
	}

	_, err = r.JoinByCode(ctx, reload(t, s, kid), f.Code)
	if apperr.KindOf(err) != apperr.KindAlreadyProcessed {
		t.Errorf("second join: err = %v, want AlreadyProcessed", err)
	}

	members, _ := r.Members(ctx, reload(t, s, kid))
	if len(members) != 2 {
		t.Errorf("members = %d, want 2", len(members))
	}
}

func TestElevateWithRootCode(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	f, _ := r.Create(ctx, user(t, s, "mom@example.com"), CreateInput{Name: "Fam"})
	other, _ := r.Create(ctx, user(t, s, "other@example.com"), CreateInput{Name: "Other"})

	dad := user(t, s, "dad@example.com")
	got, err := r.ElevateWithRootCode(ctx, dad, f.RootCode)
	if err != nil {
		t.Fatalf("elevate: %v", err)
	}
	if got.ID != f.ID || got.MemberCount != 2 {
		t.Errorf("family = %+v", got)
	}
	p, _ := s.Profiles.GetByID(ctx, dad.UserID)
	if !p.IsRoot || !p.InFamily(f.ID) {
		t.Errorf("dad = %+v, want root in family", p)
	}

	_, err = r.ElevateWithRootCode(ctx, reload(t, s, dad), other.RootCode)
	if apperr.KindOf(err) != apperr.KindAlreadyProcessed {
		t.Errorf("cross-family elevate: err = %v, want AlreadyProcessed", err)
	}
}

func TestSetRole(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	mom := user(t, s, "mom@example.com")
	f, err := r.Create(ctx, mom, CreateInput{Name: "Fam"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	mom = reload(t, s, mom)
	kid := user(t, s, "kid@example.com")
	if _, err := r.JoinByCode(ctx, kid, f.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	kid = reload(t, s, kid)

	stranger := user(t, s, "stranger@example.com")
	r.Create(ctx, stranger, CreateInput{Name: "Elsewhere"})
	stranger = reload(t, s, stranger)

	tests := []struct {
		name   string
		caller auth.AuthContext
		target int64
		role   model.Role
		want   apperr.Kind
	}{
		{"child promotes self", kid, kid.UserID, model.RoleParent, apperr.KindPermissionDenied},
		{"unknown role", mom, kid.UserID, model.Role("boss"), apperr.KindValidationFailed},
		{"root of another family", stranger, kid.UserID, model.RoleParent, apperr.KindNotFound},
		{"missing user", mom, 9999, model.RoleParent, apperr.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.SetRole(ctx, tt.caller, tt.target, tt.role)
			if apperr.KindOf(err) != tt.want {
				t.Errorf("err = %v, want %s", err, tt.want)
			}
		})
	}

	p, _ := s.Profiles.GetByID(ctx, kid.UserID)
	if p.Role != model.RoleChild {
		t.Fatalf("role after rejected changes = %q, want child", p.Role)
	}

	p, err = r.SetRole(ctx, mom, kid.UserID, model.RoleParent)
	if err != nil {
		t.Fatalf("root sets role: %v", err)
	}
	if p.Role != model.RoleParent {
		t.Errorf("role = %q, want parent", p.Role)
	}

	admin := auth.AuthContext{UserID: 999, IsSuperRoot: true}
	if p, err = r.SetRole(ctx, admin, kid.UserID, model.RoleChild); err != nil || p.Role != model.RoleChild {
		t.Errorf("super root sets role = %v, %v", p, err)
	}
}

func TestSetRootRequiresSuperRoot(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()
	target := user(t, s, "t@example.com")

	_, err := r.SetRoot(ctx, user(t, s, "plain@example.com"), target.UserID, true)
	if apperr.KindOf(err) != apperr.KindPermissionDenied {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}

	admin := auth.AuthContext{UserID: 999, IsSuperRoot: true}
	p, err := r.SetRoot(ctx, admin, target.UserID, true)
	if err != nil {
		t.Fatalf("set root: %v", err)
	}
	if !p.IsRoot {
		t.Error("expected target to be root")
	}
}

func TestGetHidesRootCodeFromMembers(t *testing.T) {
	r, s := setup(t)
	ctx := context.Background()

	mom := user(t, s, "mom@example.com")
	f, _ := r.Create(ctx, mom, CreateInput{Name: "Fam"})
	kid := user(t, s, "kid@example.com")
	r.JoinByCode(ctx, kid, f.Code)

	got, err := r.Get(ctx, reload(t, s, kid))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RootCode != "" {
		t.Error("member should not see root code")
	}
	got, _ = r.Get(ctx, reload(t, s, mom))
	if got.RootCode != f.RootCode {
		t.Error("root should see root code")
	}
}
