package api

import (
	"net/http"
)

// buildOpenAPIDoc describes the HTTP surface, with the slot parameter
// enumerated from the registry.
func buildOpenAPIDoc(slots []string) map[string]any {
	slotParam := map[string]any{
		"name":     "slot",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string", "enum": slots},
	}
	execBody := map[string]any{
		"required": true,
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"commands": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"stdin":    map[string]any{"type": "string"},
					},
				},
			},
		},
	}
	secured := []any{map[string]any{"BearerAuth": []string{}}}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "shellmux",
			"version": "1.0",
		},
		"paths": map[string]any{
			"/healthz": map[string]any{
				"get": map[string]any{"operationId": "healthz", "responses": map[string]any{"200": map[string]any{"description": "Service status"}}},
			},
			"/slots": map[string]any{
				"get": map[string]any{"operationId": "listSlots", "security": secured, "responses": map[string]any{"200": map[string]any{"description": "Slot states"}}},
			},
			"/slots/{slot}/exec": map[string]any{
				"post": map[string]any{
					"operationId": "execJob",
					"security":    secured,
					"parameters":  []any{slotParam},
					"requestBody": execBody,
					"responses": map[string]any{
						"200": map[string]any{"description": "Job result"},
						"404": map[string]any{"description": "Unknown slot"},
						"503": map[string]any{"description": "No shell available"},
					},
				},
			},
			"/slots/{slot}/jobs": map[string]any{
				"post": map[string]any{
					"operationId": "submitJob",
					"security":    secured,
					"parameters":  []any{slotParam},
					"requestBody": execBody,
					"responses":   map[string]any{"202": map[string]any{"description": "Job queued"}},
				},
			},
			"/jobs": map[string]any{
				"get": map[string]any{"operationId": "listJobs", "security": secured, "responses": map[string]any{"200": map[string]any{"description": "Recent jobs"}}},
			},
			"/jobs/{jobID}": map[string]any{
				"get": map[string]any{"operationId": "getJob", "security": secured, "responses": map[string]any{
					"200": map[string]any{"description": "Job status"},
					"404": map[string]any{"description": "Unknown job"},
				}},
			},
			"/events": map[string]any{
				"get": map[string]any{"operationId": "events", "security": secured, "responses": map[string]any{"200": map[string]any{"description": "Server-sent event stream"}}},
			},
		},
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	infos := s.slots.Slots()
	names := make([]string, 0, len(infos))
	for _, sl := range infos {
		names = append(names, sl.Name)
	}
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(names))
}
