package router

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/authz"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
)

// Public path prefixes.
const (
	APIPrefix      = "/api/v1"
	usersPath      = APIPrefix + "/users"
	ordersPath     = APIPrefix + "/orders"
	orderIDParam   = "id"
	userIDField    = "userId"
	contentTypeKey = "Content-Type"
)

// Default returns the gateway's route table.
func Default() *Table {
	t, err := NewTable(DefaultRoutes()...)
	if err != nil {
		panic(fmt.Sprintf("router: default table: %v", err))
	}
	return t
}

// DefaultRoutes lists the public endpoints.
func DefaultRoutes() []Route {
	return []Route{
		{
			Name:     "auth.register",
			Method:   http.MethodPost,
			Path:     APIPrefix + "/auth/register",
			Service:  config.ServiceUsers,
			Class:    config.ClassAuth,
			Upstream: passthrough(http.MethodPost, APIPrefix+"/auth/register"),
		},
		{
			Name:     "auth.login",
			Method:   http.MethodPost,
			Path:     APIPrefix + "/auth/login",
			Service:  config.ServiceUsers,
			Class:    config.ClassAuth,
			Upstream: passthrough(http.MethodPost, APIPrefix+"/auth/login"),
		},
		{
			Name:         "users.me.get",
			Method:       http.MethodGet,
			Path:         usersPath + "/me",
			Service:      config.ServiceUsers,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Upstream:     currentUser(http.MethodGet),
		},
		{
			Name:         "users.me.update",
			Method:       http.MethodPut,
			Path:         usersPath + "/me",
			Service:      config.ServiceUsers,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Upstream:     currentUser(http.MethodPut),
		},
		{
			Name:         "users.list",
			Method:       http.MethodGet,
			Path:         usersPath,
			Service:      config.ServiceUsers,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Roles:        authz.NewRoleSet(auth.RoleAdmin),
			Upstream:     passthrough(http.MethodGet, usersPath),
		},
		{
			Name:         "orders.create",
			Method:       http.MethodPost,
			Path:         ordersPath,
			Service:      config.ServiceOrders,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Upstream:     createOrder,
		},
		{
			Name:         "orders.list",
			Method:       http.MethodGet,
			Path:         ordersPath,
			Service:      config.ServiceOrders,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Upstream:     listOrders,
		},
		{
			Name:         "orders.get",
			Method:       http.MethodGet,
			Path:         ordersPath + "/:" + orderIDParam,
			Service:      config.ServiceOrders,
			Class:        config.ClassAPI,
			RequiresAuth: true,
			Upstream:     getOrder,
		},
	}
}

// passthrough forwards query and body unchanged to path.
func passthrough(method, path string) UpstreamFunc {
	return func(in *Inbound) (*proxy.Request, error) {
		return &proxy.Request{
			Method: method,
			Path:   path,
			Query:  in.Query,
			Body:   in.Body,
			Header: forwardHeaders(in.Header),
		}, nil
	}
}

// currentUser maps /users/me onto the principal's own record.
func currentUser(method string) UpstreamFunc {
	return func(in *Inbound) (*proxy.Request, error) {
		id, err := subject(in)
		if err != nil {
			return nil, err
		}
		req := &proxy.Request{
			Method: method,
			Path:   usersPath + "/" + url.PathEscape(id),
			Header: forwardHeaders(in.Header),
		}
		if method != http.MethodGet {
			req.Body = in.Body
		}
		return req, nil
	}
}

// createOrder pins the order owner to the principal.
func createOrder(in *Inbound) (*proxy.Request, error) {
	id, err := subject(in)
	if err != nil {
		return nil, err
	}

	order := map[string]any{}
	if len(in.Body) > 0 {
		if err := json.Unmarshal(in.Body, &order); err != nil || order == nil {
			return nil, fmt.Errorf("%w: order body must be a JSON object", ErrBadRequest)
		}
	}
	order[userIDField] = id

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("encode order: %w", err)
	}

	h := forwardHeaders(in.Header)
	h.Set(contentTypeKey, "application/json")
	return &proxy.Request{
		Method: http.MethodPost,
		Path:   ordersPath,
		Body:   body,
		Header: h,
	}, nil
}

// listOrders scopes the listing to the principal.
func listOrders(in *Inbound) (*proxy.Request, error) {
	id, err := subject(in)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	for k, vs := range in.Query {
		q[k] = append([]string(nil), vs...)
	}
	q.Set(userIDField, id)
	return &proxy.Request{
		Method: http.MethodGet,
		Path:   ordersPath,
		Query:  q,
		Header: forwardHeaders(in.Header),
	}, nil
}

func getOrder(in *Inbound) (*proxy.Request, error) {
	id := in.Param(orderIDParam)
	if id == "" || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: invalid order id", ErrBadRequest)
	}
	return &proxy.Request{
		Method: http.MethodGet,
		Path:   ordersPath + "/" + url.PathEscape(id),
		Header: forwardHeaders(in.Header),
	}, nil
}

func subject(in *Inbound) (string, error) {
	if in.Principal == nil || in.Principal.SubjectID == "" {
		return "", auth.NewError(auth.ErrMissingCredential, "route requires a principal")
	}
	return in.Principal.SubjectID, nil
}

// forwardHeaders keeps only the inbound headers the downstream services
// read. Correlation and identity headers are set by the proxy client.
func forwardHeaders(h http.Header) http.Header {
	out := http.Header{}
	if ct := h.Get(contentTypeKey); ct != "" {
		out.Set(contentTypeKey, ct)
	}
	return out
}
