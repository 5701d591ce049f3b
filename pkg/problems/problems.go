package problems

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

const (
	TenantNotFound   = "tenant-not-found"
	DatabaseNotFound = "database-not-found"
	BadRequest       = "bad-request"
	Forbidden        = "insufficient-scope"
	Internal         = "internal"
)

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. https://tenantdb.dev/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	return "https://tenantdb.dev/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Tenant string `json:"tenant,omitempty"`
}

// Write sends p as application/problem+json.
func Write(w http.ResponseWriter, p Problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}
