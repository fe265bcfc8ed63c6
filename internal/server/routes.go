package server

import (
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/storefront-dev/storefront/internal/auth"
	"github.com/storefront-dev/storefront/internal/config"
)

// Route keys name each protected endpoint in the policy table and in the
// route policy file
const (
	RouteSessionsRegister = "sessions.register"
	RouteSessionsLogin    = "sessions.login"
	RouteSessionsLogout   = "sessions.logout"
	RouteSessionsCurrent  = "sessions.current"

	RouteProductsList   = "products.list"
	RouteProductsGet    = "products.get"
	RouteProductsCreate = "products.create"
	RouteProductsUpdate = "products.update"
	RouteProductsDelete = "products.delete"

	RouteCartsGet      = "carts.get"
	RouteCartsAdd      = "carts.add"
	RouteCartsRemove   = "carts.remove"
	RouteCartsClear    = "carts.clear"
	RouteCartsPurchase = "carts.purchase"

	RouteUsersList    = "users.list"
	RouteUsersGet     = "users.get"
	RouteUsersPremium = "users.premium"
	RouteUsersPurge   = "users.purge"

	RouteChatMessages = "chat.messages"
	RouteChatWS       = "chat.ws"
)

var (
	shoppers = []string{string(auth.RoleUser), string(auth.RolePremium)}
	sellers  = []string{string(auth.RolePremium), string(auth.RoleAdmin)}
	admins   = []string{string(auth.RoleAdmin)}
)

// DefaultPolicies is the built-in route policy table. An empty strategy
// marks a public route.
func DefaultPolicies() map[string]config.RoutePolicy {
	return map[string]config.RoutePolicy{
		RouteSessionsRegister: {},
		RouteSessionsLogin:    {Strategy: auth.StrategyLocal},
		RouteSessionsLogout:   {Strategy: auth.StrategySession},
		RouteSessionsCurrent:  {Strategy: auth.StrategyCurrent},

		RouteProductsList:   {Strategy: auth.StrategyCurrent},
		RouteProductsGet:    {Strategy: auth.StrategyCurrent},
		RouteProductsCreate: {Strategy: auth.StrategyCurrent, Roles: sellers},
		RouteProductsUpdate: {Strategy: auth.StrategyCurrent, Roles: sellers},
		RouteProductsDelete: {Strategy: auth.StrategyCurrent, Roles: sellers},

		RouteCartsGet:      {Strategy: auth.StrategyCurrent, Roles: shoppers},
		RouteCartsAdd:      {Strategy: auth.StrategyCurrent, Roles: shoppers},
		RouteCartsRemove:   {Strategy: auth.StrategyCurrent, Roles: shoppers},
		RouteCartsClear:    {Strategy: auth.StrategyCurrent, Roles: shoppers},
		RouteCartsPurchase: {Strategy: auth.StrategyCurrent, Roles: shoppers},

		RouteUsersList:    {Strategy: auth.StrategyCurrent, Roles: admins},
		RouteUsersGet:     {Strategy: auth.StrategyCurrent},
		RouteUsersPremium: {Strategy: auth.StrategyCurrent, Roles: admins},
		RouteUsersPurge:   {Strategy: auth.StrategyCurrent, Roles: admins},

		RouteChatMessages: {Strategy: auth.StrategyCurrent, Roles: shoppers},
		RouteChatWS:       {Strategy: auth.StrategyCurrent, Roles: shoppers},
	}
}

// mergePolicies overlays overrides on the defaults. Overrides may only name
// known route keys.
func mergePolicies(defaults, overrides map[string]config.RoutePolicy) (map[string]config.RoutePolicy, error) {
	merged := make(map[string]config.RoutePolicy, len(defaults))
	for key, policy := range defaults {
		merged[key] = policy
	}

	var errs []error
	for key, policy := range overrides {
		if _, ok := defaults[key]; !ok {
			errs = append(errs, fmt.Errorf("route policy for unknown route %q", key))
			continue
		}
		merged[key] = policy
	}
	return merged, errors.Join(errs...)
}

// route binds a policy key to a method, path and handler
type route struct {
	key     string
	method  string
	path    string
	handler gin.HandlerFunc
}

// routeBuilder composes gateway, guard and handler for each route. Errors
// are accumulated so startup reports every misconfigured route at once.
type routeBuilder struct {
	server   *Server
	policies map[string]config.RoutePolicy
	errs     []error
}

// chain returns the middleware for key: the gateway first, then the role
// guard when the policy names roles
func (b *routeBuilder) chain(key string) []gin.HandlerFunc {
	policy, ok := b.policies[key]
	if !ok {
		b.errs = append(b.errs, fmt.Errorf("route %s: no policy", key))
		return nil
	}

	if policy.Strategy == "" {
		if len(policy.Roles) > 0 {
			b.errs = append(b.errs, fmt.Errorf("route %s: role guard requires an authentication strategy", key))
		}
		return nil
	}

	gate, err := Gate(b.server.registry, policy.Strategy, b.server.logger)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("route %s: %w", key, err))
		return nil
	}
	handlers := []gin.HandlerFunc{gate}

	if len(policy.Roles) > 0 {
		rolePolicy, err := auth.NewRolePolicy(policy.Roles...)
		if err != nil {
			b.errs = append(b.errs, fmt.Errorf("route %s: %w", key, err))
			return nil
		}
		handlers = append(handlers, Guard(rolePolicy, key, b.server.logger))
	}
	return handlers
}

func (b *routeBuilder) register(group gin.IRoutes, routes []route) {
	for _, r := range routes {
		handlers := append(b.chain(r.key), r.handler)
		group.Handle(r.method, r.path, handlers...)
	}
}

func (b *routeBuilder) err() error {
	return errors.Join(b.errs...)
}

// registerRoutes mounts the API. It fails when any route policy names an
// unregistered strategy or an unknown role.
func (s *Server) registerRoutes(policies map[string]config.RoutePolicy) error {
	b := &routeBuilder{server: s, policies: policies}

	api := s.router.Group("/api")

	b.register(api.Group("/sessions"), []route{
		{RouteSessionsRegister, http.MethodPost, "/register", s.register},
		{RouteSessionsLogin, http.MethodPost, "/login", s.login},
		{RouteSessionsLogout, http.MethodPost, "/logout", s.logout},
		{RouteSessionsCurrent, http.MethodGet, "/current", s.currentSession},
	})

	b.register(api.Group("/products"), []route{
		{RouteProductsList, http.MethodGet, "", s.listProducts},
		{RouteProductsGet, http.MethodGet, "/:pid", s.getProduct},
		{RouteProductsCreate, http.MethodPost, "", s.createProduct},
		{RouteProductsUpdate, http.MethodPut, "/:pid", s.updateProduct},
		{RouteProductsDelete, http.MethodDelete, "/:pid", s.deleteProduct},
	})

	b.register(api.Group("/carts"), []route{
		{RouteCartsGet, http.MethodGet, "/:cid", s.getCart},
		{RouteCartsAdd, http.MethodPost, "/:cid/products/:pid", s.addToCart},
		{RouteCartsRemove, http.MethodDelete, "/:cid/products/:pid", s.removeFromCart},
		{RouteCartsClear, http.MethodDelete, "/:cid", s.clearCart},
		{RouteCartsPurchase, http.MethodPost, "/:cid/purchase", s.purchaseCart},
	})

	b.register(api.Group("/users"), []route{
		{RouteUsersList, http.MethodGet, "", s.listUsers},
		{RouteUsersGet, http.MethodGet, "/:uid", s.getUser},
		{RouteUsersPremium, http.MethodPost, "/premium/:uid", s.togglePremium},
		{RouteUsersPurge, http.MethodDelete, "/inactive", s.purgeInactiveUsers},
	})

	b.register(s.router.Group("/chat"), []route{
		{RouteChatMessages, http.MethodGet, "/messages", s.listMessages},
		{RouteChatWS, http.MethodGet, "/ws", s.chatSocket},
	})

	return b.err()
}

// routeKeys returns the sorted keys of a policy table
func routeKeys(policies map[string]config.RoutePolicy) []string {
	keys := make([]string, 0, len(policies))
	for key := range policies {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}
