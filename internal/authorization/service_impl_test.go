package authorization

import (
	"context"
	"errors"
	"testing"
	"time"

	statsdomain "github.com/smallbiznis/learnboard/internal/learningstats/domain"
	membershipdomain "github.com/smallbiznis/learnboard/internal/membership/domain"
	membershiprepo "github.com/smallbiznis/learnboard/internal/membership/repository"
	membershipservice "github.com/smallbiznis/learnboard/internal/membership/service"
	"github.com/smallbiznis/learnboard/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) Service {
	t.Helper()
	svc, _ := setupServiceWithDB(t)
	return svc
}

func setupServiceWithDB(t *testing.T) (Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(&membershipdomain.Team{}, &membershipdomain.Employee{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	platform, data := "t-platform", "t-data"
	teams := []membershipdomain.Team{
		{ID: platform, OrgID: "acme", Name: "Platform", CreatedAt: now},
		{ID: data, OrgID: "acme", Name: "Data", CreatedAt: now},
	}
	if err := conn.Create(&teams).Error; err != nil {
		t.Fatalf("seed teams: %v", err)
	}
	employees := []membershipdomain.Employee{
		{ID: "alice", TeamID: &platform, Name: "Alice", Role: membershipdomain.RoleEmployee, CreatedAt: now},
		{ID: "bob", TeamID: &platform, Name: "Bob", Role: membershipdomain.RoleManager, CreatedAt: now},
		{ID: "dan", TeamID: &data, Name: "Dan", Role: membershipdomain.RoleEmployee, CreatedAt: now},
		{ID: "root", Name: "Root", Role: membershipdomain.RoleAdmin, CreatedAt: now},
	}
	if err := conn.Create(&employees).Error; err != nil {
		t.Fatalf("seed employees: %v", err)
	}

	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("enforcer: %v", err)
	}
	resolver := membershipservice.New(membershipservice.Params{DB: conn, Log: zap.NewNop(), Repo: membershiprepo.Provide()})
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, Membership: resolver}), conn
}

func TestCanView(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	cases := []struct {
		requester string
		scope     statsdomain.Scope
		allowed   bool
	}{
		{"alice", statsdomain.EmployeeScope("alice"), true},
		{"alice", statsdomain.EmployeeScope("bob"), false},
		{"alice", statsdomain.TeamScope("t-platform"), false},
		{"alice", statsdomain.OrgScope("acme"), false},

		{"bob", statsdomain.EmployeeScope("bob"), true},
		{"bob", statsdomain.EmployeeScope("alice"), true},
		{"bob", statsdomain.EmployeeScope("dan"), false},
		{"bob", statsdomain.TeamScope("t-platform"), true},
		{"bob", statsdomain.TeamScope("t-data"), false},
		{"bob", statsdomain.OrgScope("acme"), false},

		{"root", statsdomain.EmployeeScope("dan"), true},
		{"root", statsdomain.TeamScope("t-data"), true},
		{"root", statsdomain.OrgScope("acme"), true},
		{"root", statsdomain.EmployeeScope("ghost"), true},
	}

	for _, tc := range cases {
		requester, err := svc.Resolve(ctx, tc.requester)
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.requester, err)
		}
		err = svc.CanView(ctx, requester, tc.scope)
		if tc.allowed && err != nil {
			t.Fatalf("%s viewing %s: expected allowed, got %v", tc.requester, tc.scope, err)
		}
		if !tc.allowed && !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s viewing %s: expected ErrForbidden, got %v", tc.requester, tc.scope, err)
		}
	}
}

func TestResolveUnknownEmployee(t *testing.T) {
	svc := setupService(t)

	if _, err := svc.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
	if _, err := svc.Resolve(context.Background(), "  "); !errors.Is(err, ErrInvalidActor) {
		t.Fatalf("expected ErrInvalidActor for blank id, got %v", err)
	}
}

func TestRebuildIsAdminOnly(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for id, allowed := range map[string]bool{"alice": false, "bob": false, "root": true} {
		requester, err := svc.Resolve(ctx, id)
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		err = svc.Authorize(ctx, requester, ObjectStats, ActionRebuild)
		if allowed != (err == nil) {
			t.Fatalf("%s rebuild: allowed=%v err=%v", id, allowed, err)
		}
	}
}

func TestEveryRoleCanLog(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	for _, id := range []string{"alice", "bob", "root"} {
		requester, err := svc.Resolve(ctx, id)
		if err != nil {
			t.Fatalf("resolve %s: %v", id, err)
		}
		if err := svc.Authorize(ctx, requester, ObjectLearnings, ActionLog); err != nil {
			t.Fatalf("%s log: %v", id, err)
		}
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := NewEnforcer(conn); err != nil {
		t.Fatalf("first enforcer: %v", err)
	}
	enforcer, err := NewEnforcer(conn)
	if err != nil {
		t.Fatalf("second enforcer: %v", err)
	}
	policies, err := enforcer.GetPolicy()
	if err != nil {
		t.Fatalf("get policy: %v", err)
	}
	if len(policies) != 8 {
		t.Fatalf("expected 8 policies, got %d", len(policies))
	}
}

func TestResolveServesCachedRole(t *testing.T) {
	svc, conn := setupServiceWithDB(t)
	ctx := context.Background()

	first, err := svc.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := conn.Model(&membershipdomain.Employee{}).Where("id = ?", "alice").Update("role", membershipdomain.RoleAdmin).Error; err != nil {
		t.Fatalf("update role: %v", err)
	}

	second, err := svc.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first.Role != membershipdomain.RoleEmployee || second.Role != first.Role {
		t.Fatalf("expected cached employee role, got %q then %q", first.Role, second.Role)
	}
}
