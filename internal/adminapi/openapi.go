package adminapi

import (
	"tenantdb/pkg/middleware"
	"tenantdb/pkg/openapi"
)

var problemResponse = map[string]any{
	"description": "problem document",
	"content":     map[string]any{"application/problem+json": map[string]any{}},
}

// apiDoc documents the admin routes served by Handler.
func apiDoc() *openapi.Registry {
	doc := openapi.NewRegistry()
	doc.DescribeScope(middleware.ScopeTenantsRead, "List, inspect and probe tenants")
	doc.DescribeScope(middleware.ScopeTenantsWrite, "Register, provision and drop tenants")

	read := []string{middleware.ScopeTenantsRead}
	write := []string{middleware.ScopeTenantsWrite}
	ok := func(desc string) map[string]any {
		return map[string]any{"200": map[string]any{"description": desc}}
	}
	doc.Register(openapi.Operation{Method: "GET", Path: "/admin/tenants", Summary: "List tenants", Tags: []string{"tenants"}, Scopes: read,
		Responses: ok("default tenant and registered tenant names")})
	doc.Register(openapi.Operation{Method: "GET", Path: "/admin/tenants/{tenant}", Summary: "Get a tenant's config", Tags: []string{"tenants"}, Scopes: read,
		Responses: map[string]any{"200": map[string]any{"description": "tenant config, password redacted"}, "404": problemResponse}})
	doc.Register(openapi.Operation{Method: "GET", Path: "/admin/tenants/{tenant}/probe", Summary: "Switch to the tenant and reset", Tags: []string{"tenants"}, Scopes: read,
		Responses: map[string]any{"200": map[string]any{"description": "active tenant and config"}, "404": problemResponse}})
	doc.Register(openapi.Operation{Method: "PUT", Path: "/admin/tenants/{tenant}", Summary: "Register a tenant", Tags: []string{"tenants"}, Scopes: write,
		Description: "An empty body derives the config from the default tenant.",
		RequestBody: map[string]any{"content": map[string]any{"application/json": map[string]any{}}},
		Responses:   map[string]any{"200": map[string]any{"description": "registered config"}, "400": problemResponse}})
	doc.Register(openapi.Operation{Method: "POST", Path: "/admin/tenants/{tenant}", Summary: "Provision database and schema", Tags: []string{"tenants"}, Scopes: write,
		Responses: map[string]any{"201": map[string]any{"description": "provisioned"}, "404": problemResponse, "500": problemResponse}})
	doc.Register(openapi.Operation{Method: "DELETE", Path: "/admin/tenants/{tenant}", Summary: "Drop a tenant's storage", Tags: []string{"tenants"}, Scopes: write,
		Description: "mode=database|schema overrides the strategy; forget=true also unregisters the tenant.",
		Responses:   map[string]any{"204": map[string]any{"description": "dropped"}, "400": problemResponse, "404": problemResponse}})
	doc.Register(openapi.Operation{Method: "GET", Path: "/tenant/whoami", Summary: "Tenant bound to this request", Tags: []string{"session"},
		Responses: map[string]any{"200": map[string]any{"description": "tenant, database and schema"}, "404": problemResponse}})
	return doc
}
