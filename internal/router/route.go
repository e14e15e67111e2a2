package router

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/authz"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
)

// ErrBadRequest is returned by upstream builders for inbound requests that
// cannot be turned into a downstream call.
var ErrBadRequest = errors.New("bad request")

// Inbound is the part of a client request the upstream builders see.
type Inbound struct {
	Params    map[string]string
	Query     url.Values
	Body      []byte
	Header    http.Header
	Principal *auth.Principal
}

// Param returns a path parameter.
func (in *Inbound) Param(name string) string {
	return in.Params[name]
}

// UpstreamFunc rewrites an inbound request into a downstream call.
type UpstreamFunc func(in *Inbound) (*proxy.Request, error)

// Route describes one public endpoint.
type Route struct {
	Name    string
	Method  string
	Path    string
	Service string

	// Class selects the rate limiter. Empty means not limited.
	Class string

	RequiresAuth bool

	// Roles restricts the route to these roles. Empty admits any principal.
	Roles authz.RoleSet

	Upstream UpstreamFunc
}

// Key identifies the route by method and path pattern.
func (r *Route) Key() string {
	return r.Method + " " + r.Path
}

func (r *Route) validate() error {
	switch {
	case r.Name == "":
		return errors.New("route name is required")
	case r.Method == "":
		return fmt.Errorf("route %s: method is required", r.Name)
	case !strings.HasPrefix(r.Path, "/"):
		return fmt.Errorf("route %s: path must start with /", r.Name)
	case r.Service == "":
		return fmt.Errorf("route %s: service is required", r.Name)
	case r.Upstream == nil:
		return fmt.Errorf("route %s: upstream is required", r.Name)
	case len(r.Roles) > 0 && !r.RequiresAuth:
		return fmt.Errorf("route %s: roles require authentication", r.Name)
	}
	return nil
}

// Table is a validated, immutable set of routes.
type Table struct {
	routes []Route
	byKey  map[string]int
	byName map[string]int
}

// NewTable validates routes and builds a table.
func NewTable(routes ...Route) (*Table, error) {
	t := &Table{
		routes: make([]Route, 0, len(routes)),
		byKey:  make(map[string]int, len(routes)),
		byName: make(map[string]int, len(routes)),
	}
	for i := range routes {
		r := routes[i]
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := t.byName[r.Name]; dup {
			return nil, fmt.Errorf("duplicate route name: %s", r.Name)
		}
		if _, dup := t.byKey[r.Key()]; dup {
			return nil, fmt.Errorf("duplicate route: %s", r.Key())
		}
		t.byKey[r.Key()] = len(t.routes)
		t.byName[r.Name] = len(t.routes)
		t.routes = append(t.routes, r)
	}
	return t, nil
}

// Routes returns the routes in declaration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Lookup returns the route registered for method and path pattern.
func (t *Table) Lookup(method, pattern string) (Route, bool) {
	i, ok := t.byKey[method+" "+pattern]
	if !ok {
		return Route{}, false
	}
	return t.routes[i], true
}

// Services returns the distinct downstream services, sorted.
func (t *Table) Services() []string {
	seen := make(map[string]struct{})
	for _, r := range t.routes {
		seen[r.Service] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
