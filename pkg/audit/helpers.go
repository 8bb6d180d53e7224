package audit

import (
	"net/http"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// apiPrefix is the mount point of the versioned API.
const apiPrefix = "/api/v1/"

// calculationVerbs are POST custom methods that compute a result without
// changing state. They are not audited.
var calculationVerbs = mapset.NewSet("compute", "convert", "eligibility")

// splitPath returns the path segments below the API prefix. Paths outside
// the API yield nil.
func splitPath(path string) []string {
	if !strings.HasPrefix(path, apiPrefix) {
		return nil
	}
	rest := strings.Trim(strings.TrimPrefix(path, apiPrefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

// splitVerb splits a segment like "credits:issue" into its name and custom
// verb.
func splitVerb(segment string) (string, string) {
	if idx := strings.Index(segment, ":"); idx > 0 {
		return segment[:idx], segment[idx+1:]
	}
	return segment, ""
}

// extractResourceType returns the first path segment below /api/v1 with any
// custom verb stripped: "credits" for /api/v1/credits:issue, "certifications"
// for /api/v1/certifications/{name}.
func extractResourceType(path string) string {
	parts := splitPath(path)
	if len(parts) == 0 {
		return ""
	}
	name, _ := splitVerb(parts[0])
	return name
}

// extractResourceIDs returns the path segments following the resource type.
func extractResourceIDs(path string) []string {
	parts := splitPath(path)
	if len(parts) < 2 {
		return nil
	}
	var ids []string
	for _, p := range parts[1:] {
		id, _ := splitVerb(p)
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// extractActionVerb returns the custom verb of the last path segment, or a
// name derived from the HTTP method.
func extractActionVerb(method, path string) string {
	if parts := splitPath(path); len(parts) > 0 {
		if _, verb := splitVerb(parts[len(parts)-1]); verb != "" {
			return verb
		}
	}

	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut:
		return "update"
	case http.MethodPatch:
		return "patch"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// isAuditedRequest reports whether the request changes state and should be
// audited. Reads and pure calculations are not.
func isAuditedRequest(method, path string) bool {
	if isHealthEndpoint(path) {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	if parts := splitPath(path); len(parts) > 0 {
		if _, verb := splitVerb(parts[len(parts)-1]); calculationVerbs.Contains(verb) {
			return false
		}
	}
	return true
}

// isHealthEndpoint returns true for health-check paths.
func isHealthEndpoint(path string) bool {
	switch path {
	case "/livez", "/readyz", "/healthz":
		return true
	}
	return false
}
