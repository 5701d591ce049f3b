package openapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
)

// Operation represents a single HTTP operation to surface in OpenAPI.
type Operation struct {
	Method      string         `json:"method"`
	Path        string         `json:"path"`
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	Scopes      []string       `json:"x-required-scopes,omitempty"`
	RequestBody any            `json:"requestBody,omitempty"`
	Responses   map[string]any `json:"responses"`
}

// Registry holds the operations a service documents.
type Registry struct {
	Ops    []Operation
	scopes map[string]string
}

func NewRegistry() *Registry { return &Registry{Ops: []Operation{}, scopes: map[string]string{}} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	r.Ops = append(r.Ops, op)
}

// DescribeScope documents a bearer scope required by some operations.
func (r *Registry) DescribeScope(scope, description string) {
	r.scopes[scope] = description
}

// Build produces a minimal OpenAPI 3.1 document of the registered operations.
// Components/schemas are kept inline.
func (r *Registry) Build(serviceName, version string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.Ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"summary":   op.Summary,
			"tags":      op.Tags,
			"responses": op.Responses,
		}
		if op.Description != "" {
			m["description"] = op.Description
		}
		if len(op.Scopes) > 0 {
			m["x-required-scopes"] = op.Scopes
			m["security"] = []map[string]any{{"bearer": op.Scopes}}
		}
		if op.RequestBody != nil {
			m["requestBody"] = op.RequestBody
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	scopes := make([]string, 0, len(r.scopes))
	for s := range r.scopes {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{
					"type":          "http",
					"scheme":        "bearer",
					"bearerFormat":  "JWT",
					"x-scopes":      scopes,
					"x-description": r.scopes,
				},
			},
		},
	}
}

// ServeHandler returns an HTTP handler that serves the built OpenAPI JSON.
func (r *Registry) ServeHandler(serviceName, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(r.Build(serviceName, version))
	}
}
