package auth

import (
	"fmt"
	"strings"

	"github.com/charlesng35/multiguard/internal/models"
)

// GuardName identifies an authentication namespace.
type GuardName string

const (
	GuardUser   GuardName = "user"
	GuardAdmin  GuardName = "admin"
	GuardSeller GuardName = "seller"
)

// Guard describes one isolated namespace: its session keys, principal table
// and route prefix.
type Guard struct {
	Name             GuardName
	SessionKeyPrefix string
	Partition        models.Partition
	RoutePrefix      string
	HomePath         string
}

// LoginKey is the session key holding the bound principal ID.
func (g Guard) LoginKey() string { return g.SessionKeyPrefix + ".login" }

// ConfirmedAtKey is the session key holding the last password confirmation (unix seconds).
func (g Guard) ConfirmedAtKey() string { return g.SessionKeyPrefix + ".auth.password_confirmed_at" }

// RememberCookie is the name of the long-lived remember-me cookie.
func (g Guard) RememberCookie() string { return "remember_" + string(g.Name) }

// Path prefixes path with the guard's route prefix.
func (g Guard) Path(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if g.RoutePrefix != "" && path == "/" {
		return g.RoutePrefix
	}
	return g.RoutePrefix + path
}

// DefaultGuards returns the user, admin and seller namespaces.
func DefaultGuards() []Guard {
	return []Guard{
		{Name: GuardUser, SessionKeyPrefix: "user", Partition: models.PartitionUsers, RoutePrefix: "", HomePath: "/dashboard"},
		{Name: GuardAdmin, SessionKeyPrefix: "admin", Partition: models.PartitionAdmins, RoutePrefix: "/admin", HomePath: "/admin"},
		{Name: GuardSeller, SessionKeyPrefix: "seller", Partition: models.PartitionSellers, RoutePrefix: "/seller", HomePath: "/seller"},
	}
}

// Registry is the fixed set of guards known at start-up.
type Registry struct {
	guards map[GuardName]Guard
	order  []GuardName
}

// NewRegistry validates guards and indexes them by name. Names, session key
// prefixes, partitions and route prefixes must all be distinct.
func NewRegistry(guards ...Guard) (*Registry, error) {
	if len(guards) == 0 {
		return nil, fmt.Errorf("auth: at least one guard is required")
	}

	r := &Registry{guards: make(map[GuardName]Guard, len(guards))}
	prefixes := make(map[string]GuardName)
	partitions := make(map[models.Partition]GuardName)
	routes := make(map[string]GuardName)

	for _, g := range guards {
		if g.Name == "" || g.SessionKeyPrefix == "" || g.Partition == "" {
			return nil, fmt.Errorf("auth: guard %q is incomplete", g.Name)
		}
		if _, exists := r.guards[g.Name]; exists {
			return nil, fmt.Errorf("auth: duplicate guard %q", g.Name)
		}
		if other, exists := prefixes[g.SessionKeyPrefix]; exists {
			return nil, fmt.Errorf("auth: guards %q and %q share session prefix %q", other, g.Name, g.SessionKeyPrefix)
		}
		if other, exists := partitions[g.Partition]; exists {
			return nil, fmt.Errorf("auth: guards %q and %q share partition %q", other, g.Name, g.Partition)
		}
		if other, exists := routes[g.RoutePrefix]; exists {
			return nil, fmt.Errorf("auth: guards %q and %q share route prefix %q", other, g.Name, g.RoutePrefix)
		}
		if g.HomePath == "" {
			g.HomePath = g.Path("/")
		}

		prefixes[g.SessionKeyPrefix] = g.Name
		partitions[g.Partition] = g.Name
		routes[g.RoutePrefix] = g.Name
		r.guards[g.Name] = g
		r.order = append(r.order, g.Name)
	}
	return r, nil
}

// Get returns the named guard.
func (r *Registry) Get(name GuardName) (Guard, bool) {
	g, ok := r.guards[name]
	return g, ok
}

// All returns guards in registration order.
func (r *Registry) All() []Guard {
	out := make([]Guard, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.guards[name])
	}
	return out
}
