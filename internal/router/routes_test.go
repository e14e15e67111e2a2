package router

import (
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/edgegw/internal/auth"
	"github.com/vyrodovalexey/edgegw/internal/authz"
	"github.com/vyrodovalexey/edgegw/internal/config"
	"github.com/vyrodovalexey/edgegw/internal/proxy"
)

func principal(role auth.Role) *auth.Principal {
	return &auth.Principal{SubjectID: "u-1", Role: role}
}

func TestDefault_Table(t *testing.T) {
	t.Parallel()

	table := Default()
	assert.Len(t, table.Routes(), 8)
	assert.Equal(t, []string{config.ServiceOrders, config.ServiceUsers}, table.Services())

	tests := []struct {
		method       string
		path         string
		service      string
		class        string
		requiresAuth bool
		roles        []auth.Role
	}{
		{http.MethodPost, "/api/v1/auth/register", config.ServiceUsers, config.ClassAuth, false, nil},
		{http.MethodPost, "/api/v1/auth/login", config.ServiceUsers, config.ClassAuth, false, nil},
		{http.MethodGet, "/api/v1/users/me", config.ServiceUsers, config.ClassAPI, true, nil},
		{http.MethodPut, "/api/v1/users/me", config.ServiceUsers, config.ClassAPI, true, nil},
		{http.MethodGet, "/api/v1/users", config.ServiceUsers, config.ClassAPI, true, []auth.Role{auth.RoleAdmin}},
		{http.MethodPost, "/api/v1/orders", config.ServiceOrders, config.ClassAPI, true, nil},
		{http.MethodGet, "/api/v1/orders", config.ServiceOrders, config.ClassAPI, true, nil},
		{http.MethodGet, "/api/v1/orders/:id", config.ServiceOrders, config.ClassAPI, true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			t.Parallel()
			r, ok := table.Lookup(tt.method, tt.path)
			require.True(t, ok)
			assert.Equal(t, tt.service, r.Service)
			assert.Equal(t, tt.class, r.Class)
			assert.Equal(t, tt.requiresAuth, r.RequiresAuth)
			if tt.roles == nil {
				assert.Empty(t, r.Roles)
			} else {
				assert.Equal(t, tt.roles, r.Roles.Roles())
			}
		})
	}

	_, ok := table.Lookup(http.MethodDelete, "/api/v1/orders/:id")
	assert.False(t, ok)
}

func TestNewTable_Validation(t *testing.T) {
	t.Parallel()

	noop := func(*Inbound) (*proxy.Request, error) { return &proxy.Request{}, nil }
	valid := Route{Name: "a", Method: http.MethodGet, Path: "/a", Service: "users", Upstream: noop}

	tests := []struct {
		name   string
		routes []Route
	}{
		{"missing name", []Route{{Method: "GET", Path: "/a", Service: "users", Upstream: noop}}},
		{"missing method", []Route{{Name: "a", Path: "/a", Service: "users", Upstream: noop}}},
		{"relative path", []Route{{Name: "a", Method: "GET", Path: "a", Service: "users", Upstream: noop}}},
		{"missing service", []Route{{Name: "a", Method: "GET", Path: "/a", Upstream: noop}}},
		{"missing upstream", []Route{{Name: "a", Method: "GET", Path: "/a", Service: "users"}}},
		{"roles without auth", []Route{{
			Name: "a", Method: "GET", Path: "/a", Service: "users", Upstream: noop,
			Roles: authz.NewRoleSet(auth.RoleAdmin),
		}}},
		{"duplicate name", []Route{valid, {Name: "a", Method: "POST", Path: "/a", Service: "users", Upstream: noop}}},
		{"duplicate key", []Route{valid, {Name: "b", Method: "GET", Path: "/a", Service: "users", Upstream: noop}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewTable(tt.routes...)
			assert.Error(t, err)
		})
	}

	table, err := NewTable(valid)
	require.NoError(t, err)
	assert.Len(t, table.Routes(), 1)
}

func upstream(t *testing.T, method, path string, in *Inbound) *proxy.Request {
	t.Helper()
	r, ok := Default().Lookup(method, path)
	require.True(t, ok)
	req, err := r.Upstream(in)
	require.NoError(t, err)
	return req
}

func TestUpstream_UsersMe(t *testing.T) {
	t.Parallel()

	req := upstream(t, http.MethodGet, "/api/v1/users/me", &Inbound{
		Principal: &auth.Principal{SubjectID: "a b", Role: auth.RoleUser},
		Body:      []byte(`{"ignored":true}`),
	})
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/api/v1/users/a%20b", req.Path)
	assert.Nil(t, req.Body)

	body := []byte(`{"name":"Ada"}`)
	req = upstream(t, http.MethodPut, "/api/v1/users/me", &Inbound{
		Principal: principal(auth.RoleUser),
		Body:      body,
		Header:    http.Header{"Content-Type": {"application/json"}, "Authorization": {"Bearer x"}},
	})
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/api/v1/users/u-1", req.Path)
	assert.Equal(t, body, req.Body)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestUpstream_ListUsersKeepsQuery(t *testing.T) {
	t.Parallel()

	q := url.Values{"page": {"2"}, "role": {"manager"}}
	req := upstream(t, http.MethodGet, "/api/v1/users", &Inbound{Principal: principal(auth.RoleAdmin), Query: q})
	assert.Equal(t, "/api/v1/users", req.Path)
	assert.Equal(t, q, req.Query)
}

func TestUpstream_CreateOrderPinsOwner(t *testing.T) {
	t.Parallel()

	req := upstream(t, http.MethodPost, "/api/v1/orders", &Inbound{
		Principal: principal(auth.RoleUser),
		Body:      []byte(`{"items":[{"product":"p","quantity":1}],"userId":"someone-else"}`),
	})
	var got map[string]any
	require.NoError(t, json.Unmarshal(req.Body, &got))
	assert.Equal(t, "u-1", got["userId"])
	assert.Len(t, got["items"], 1)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

	req = upstream(t, http.MethodPost, "/api/v1/orders", &Inbound{Principal: principal(auth.RoleUser)})
	assert.JSONEq(t, `{"userId":"u-1"}`, string(req.Body))

	r, _ := Default().Lookup(http.MethodPost, "/api/v1/orders")
	for _, bad := range []string{`[1,2]`, `null`, `{`} {
		_, err := r.Upstream(&Inbound{Principal: principal(auth.RoleUser), Body: []byte(bad)})
		assert.ErrorIs(t, err, ErrBadRequest, bad)
	}
}

func TestUpstream_ListOrdersScopesToPrincipal(t *testing.T) {
	t.Parallel()

	in := url.Values{"status": {"pending"}, "userId": {"someone-else", "x"}}
	req := upstream(t, http.MethodGet, "/api/v1/orders", &Inbound{Principal: principal(auth.RoleUser), Query: in})
	assert.Equal(t, []string{"u-1"}, req.Query["userId"])
	assert.Equal(t, "pending", req.Query.Get("status"))
	assert.Equal(t, []string{"someone-else", "x"}, in["userId"], "inbound query is not mutated")
}

func TestUpstream_GetOrder(t *testing.T) {
	t.Parallel()

	req := upstream(t, http.MethodGet, "/api/v1/orders/:id", &Inbound{
		Principal: principal(auth.RoleUser),
		Params:    map[string]string{"id": "o/1?x"},
	})
	assert.Equal(t, "/api/v1/orders/o%2F1%3Fx", req.Path)

	r, _ := Default().Lookup(http.MethodGet, "/api/v1/orders/:id")
	for _, id := range []string{"", ".", ".."} {
		_, err := r.Upstream(&Inbound{Principal: principal(auth.RoleUser), Params: map[string]string{"id": id}})
		assert.ErrorIs(t, err, ErrBadRequest)
	}
}

func TestUpstream_RequiresPrincipal(t *testing.T) {
	t.Parallel()

	for _, key := range [][2]string{
		{http.MethodGet, "/api/v1/users/me"},
		{http.MethodPost, "/api/v1/orders"},
		{http.MethodGet, "/api/v1/orders"},
	} {
		r, ok := Default().Lookup(key[0], key[1])
		require.True(t, ok)
		_, err := r.Upstream(&Inbound{})
		assert.ErrorIs(t, err, auth.ErrMissingCredential)
	}
}
