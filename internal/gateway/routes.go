package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avagate/internal/auth"
	"github.com/vyrodovalexey/avagate/internal/cache"
	"github.com/vyrodovalexey/avagate/internal/pipeline"
)

// Route paths.
const (
	HealthPath   = "/health"
	ReadyPath    = "/ready"
	APIPrefix    = "/api/v1"
	AuthPrefix   = APIPrefix + "/auth"
	UsersPath    = APIPrefix + "/users"
	userByIDPath = UsersPath + "/:id"
)

type route struct {
	method  string
	path    string
	policy  pipeline.Policy
	handler gin.HandlerFunc
}

// routes is the route table. Every route runs through the pipeline; the
// policy decides which stages apply.
func (g *Gateway) routes() []route {
	var (
		admin      = []auth.Role{auth.RoleAdmin}
		privileged = []auth.Role{auth.RoleAdmin, auth.RoleModerator}
		users      = []string{cache.CollectionPattern(UsersPath)}
	)

	table := []route{
		{http.MethodGet, HealthPath, pipeline.Policy{Name: "health", Exempt: true}, g.deps.Health.HealthHandler()},
		{http.MethodGet, ReadyPath, pipeline.Policy{Name: "ready", Exempt: true}, g.deps.Health.ReadinessHandler()},

		{http.MethodPost, AuthPrefix + "/register", pipeline.Policy{
			Name:         "auth.register",
			AuthEndpoint: true,
			Invalidates:  users,
		}, g.register},
		{http.MethodPost, AuthPrefix + "/login", pipeline.Policy{
			Name:         "auth.login",
			AuthEndpoint: true,
		}, g.login},
		{http.MethodPost, AuthPrefix + "/refresh", pipeline.Policy{
			Name:         "auth.refresh",
			Auth:         pipeline.AuthRequired,
			AuthEndpoint: true,
		}, g.refresh},
		{http.MethodGet, AuthPrefix + "/me", pipeline.Policy{
			Name: "auth.me",
			Auth: pipeline.AuthRequired,
		}, g.me},

		{http.MethodGet, UsersPath, pipeline.Policy{
			Name:      "users.list",
			Auth:      pipeline.AuthRequired,
			Cacheable: true,
		}, g.listUsers},
		{http.MethodGet, userByIDPath, pipeline.Policy{
			Name:            "users.get",
			Auth:            pipeline.AuthRequired,
			OwnerParam:      "id",
			PrivilegedRoles: privileged,
			Cacheable:       true,
		}, g.getUser},
		{http.MethodPost, UsersPath, pipeline.Policy{
			Name:        "users.create",
			Auth:        pipeline.AuthRequired,
			Roles:       admin,
			Invalidates: users,
		}, g.createUser},
		{http.MethodPut, userByIDPath, pipeline.Policy{
			Name:            "users.update",
			Auth:            pipeline.AuthRequired,
			OwnerParam:      "id",
			PrivilegedRoles: admin,
			Invalidates:     users,
		}, g.updateUser},
		{http.MethodPatch, userByIDPath + "/role", pipeline.Policy{
			Name:        "users.role",
			Auth:        pipeline.AuthRequired,
			Roles:       admin,
			Invalidates: users,
		}, g.changeRole},
		{http.MethodDelete, userByIDPath, pipeline.Policy{
			Name:            "users.deactivate",
			Auth:            pipeline.AuthRequired,
			OwnerParam:      "id",
			PrivilegedRoles: admin,
			Invalidates:     users,
		}, g.deactivateUser},
	}

	if g.cfg.Metrics.Enabled && g.deps.Metrics != nil {
		table = append(table, route{
			http.MethodGet, g.cfg.Metrics.Path,
			pipeline.Policy{Name: "metrics", Exempt: true},
			g.deps.Metrics.Handler(),
		})
	}
	return table
}
