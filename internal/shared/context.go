package shared

import "context"

// Role identifies the capability group of an authenticated actor.
type Role string

const (
	RoleSuperAdmin   Role = "super_admin"
	RoleAdminGudang  Role = "admin_gudang"
	RoleAdminFinance Role = "admin_finance"
	RoleKasir        Role = "kasir"
	RoleDriver       Role = "driver"
	RoleCustomer     Role = "customer"
)

// Actor is the authenticated principal attached to every state-changing
// request. Authentication happens upstream; the core only checks roles.
type Actor struct {
	ID   int64
	Role Role
}

// System is the actor used by background sweeps.
var System = Actor{ID: 0, Role: RoleSuperAdmin}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
