package adminapi

import (
	"encoding/json"
	"net/http"

	"tenantdb/pkg/problems"
	"tenantdb/pkg/tenants"
)

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func badRequest(w http.ResponseWriter, detail string) {
	problems.Write(w, problems.Problem{
		Type:   problems.Type(problems.BadRequest),
		Title:  "Bad request",
		Status: http.StatusBadRequest,
		Detail: detail,
	})
}

// redacted hides the password of a config returned to clients.
func redacted(cfg tenants.Config) tenants.Config {
	if cfg.Password != "" {
		cfg.Password = "***"
	}
	return cfg
}
