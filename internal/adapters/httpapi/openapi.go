package httpapi

import (
	"net/http"

	"github.com/Guilhem-Bonnet/subseek/internal/buildinfo"
	"github.com/Guilhem-Bonnet/subseek/internal/httpjson"
)

// handleOpenAPI renvoie la description OpenAPI de l'API v1.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	jsonOK := func(schemaRef string) map[string]any {
		return map[string]any{
			"description": "OK",
			"content": map[string]any{
				"application/json": map[string]any{
					"schema": map[string]any{"$ref": schemaRef},
				},
			},
		}
	}

	jsonErr := map[string]any{
		"description": "Error",
		"content": map[string]any{
			"application/json": map[string]any{
				"schema": map[string]any{"$ref": "#/components/schemas/Error"},
			},
		},
	}

	catalogParam := map[string]any{
		"name": "catalog", "in": "path", "required": true,
		"schema": map[string]any{"type": "string", "enum": anySlice(s.catalogNames())},
	}
	queryParam := func(name, typ, desc string) map[string]any {
		return map[string]any{
			"name": name, "in": "query", "required": false, "description": desc,
			"schema": map[string]any{"type": typ},
		}
	}

	doc := map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "subseek API",
			"version": buildinfo.Current().Version,
		},
		"components": map[string]any{
			"schemas": map[string]any{
				"OpenAPIDocument": map[string]any{
					"type":                 "object",
					"additionalProperties": true,
				},
				"Error": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"error": map[string]any{"type": "string"},
						"code": map[string]any{
							"type": "string",
							"enum": []any{"invalid_id", "invalid_request", "transport", "unknown_catalog", "canceled"},
						},
					},
					"required": []any{"error"},
				},
				"Settings": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"catalogUsername":       map[string]any{"type": "string"},
						"catalogPassword":       map[string]any{"type": "string", "description": "Masqué en lecture; vide ou masqué en écriture = inchangé."},
						"maxConcurrentRequests": map[string]any{"type": "integer", "minimum": 1},
						"maxBatchWorkers":       map[string]any{"type": "integer", "minimum": 1},
						"hideIncomplete":        map[string]any{"type": "boolean"},
					},
					"additionalProperties": false,
				},
				"SearchRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":    map[string]any{"type": "string"},
						"season":   map[string]any{"type": "integer", "minimum": 0},
						"episode":  map[string]any{"type": "integer", "minimum": 1},
						"year":     map[string]any{"type": "integer"},
						"language": map[string]any{"type": "string", "example": "eng"},
					},
					"required": []any{"title", "language"},
				},
				"SubtitleCandidate": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":              map[string]any{"type": "string", "description": "Identifiant opaque, à repasser tel quel à /subtitles/{id}."},
						"catalog":         map[string]any{"type": "string"},
						"displayName":     map[string]any{"type": "string"},
						"languageCode":    map[string]any{"type": "string"},
						"format":          map[string]any{"type": "string", "enum": []any{"srt"}},
						"hearingImpaired": map[string]any{"type": "boolean"},
						"completed":       map[string]any{"type": "boolean"},
						"downloadCount":   map[string]any{"type": "integer"},
						"discoveredAt":    map[string]any{"type": "string", "format": "date-time"},
					},
					"required": []any{"id", "catalog", "displayName", "languageCode", "format", "hearingImpaired"},
				},
				"CandidateList": map[string]any{
					"type":  "array",
					"items": map[string]any{"$ref": "#/components/schemas/SubtitleCandidate"},
				},
				"BatchRequest": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"requests": map[string]any{
							"type":     "array",
							"maxItems": maxBatchRequests,
							"items":    map[string]any{"$ref": "#/components/schemas/SearchRequest"},
						},
					},
					"required": []any{"requests"},
				},
				"BatchResponse": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"results": map[string]any{
							"type": "array",
							"items": map[string]any{
								"type": "object",
								"properties": map[string]any{
									"request":    map[string]any{"$ref": "#/components/schemas/SearchRequest"},
									"candidates": map[string]any{"$ref": "#/components/schemas/CandidateList"},
									"error":      map[string]any{"type": "string"},
									"errorCode":  map[string]any{"type": "string"},
								},
							},
						},
					},
				},
				"Health": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"status": map[string]any{"type": "string"},
						"limiter": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"limit":    map[string]any{"type": "integer"},
								"inFlight": map[string]any{"type": "integer"},
								"waiting":  map[string]any{"type": "integer"},
							},
						},
					},
				},
				"Catalog": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":  map[string]any{"type": "string"},
						"cache": map[string]any{"type": "object", "additionalProperties": map[string]any{"type": "integer"}},
					},
				},
			},
		},
		"paths": map[string]any{
			"/api/v1/health": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/Health")}},
			},
			"/api/v1/version": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "OK"}}},
			},
			"/api/v1/openapi.json": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": jsonOK("#/components/schemas/OpenAPIDocument")}},
			},
			"/api/v1/events": map[string]any{
				"get": map[string]any{"responses": map[string]any{"200": map[string]any{"description": "SSE"}}},
			},
			"/api/v1/settings": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"500": jsonErr,
					},
				},
				"put": map[string]any{
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/Settings"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/Settings"),
						"400": jsonErr,
						"500": jsonErr,
					},
				},
			},
			"/api/v1/catalogs": map[string]any{
				"get": map[string]any{
					"responses": map[string]any{
						"200": map[string]any{
							"description": "OK",
							"content": map[string]any{
								"application/json": map[string]any{
									"schema": map[string]any{"type": "array", "items": map[string]any{"$ref": "#/components/schemas/Catalog"}},
								},
							},
						},
					},
				},
			},
			"/api/v1/catalogs/{catalog}/search": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						catalogParam,
						queryParam("title", "string", "Titre de la série ou du film"),
						queryParam("season", "integer", "Saison (épisodes)"),
						queryParam("episode", "integer", "Épisode (épisodes)"),
						queryParam("year", "integer", "Année (films)"),
						queryParam("language", "string", "Langue demandée (nom ou code)"),
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/CandidateList"),
						"400": jsonErr,
						"404": jsonErr,
						"502": jsonErr,
						"504": jsonErr,
					},
				},
			},
			"/api/v1/catalogs/{catalog}/search/batch": map[string]any{
				"post": map[string]any{
					"parameters": []any{catalogParam},
					"requestBody": map[string]any{
						"required": true,
						"content": map[string]any{
							"application/json": map[string]any{
								"schema": map[string]any{"$ref": "#/components/schemas/BatchRequest"},
							},
						},
					},
					"responses": map[string]any{
						"200": jsonOK("#/components/schemas/BatchResponse"),
						"400": jsonErr,
						"404": jsonErr,
						"504": jsonErr,
					},
				},
			},
			"/api/v1/catalogs/{catalog}/subtitles/{id}": map[string]any{
				"get": map[string]any{
					"parameters": []any{
						catalogParam,
						map[string]any{"name": "id", "in": "path", "required": true, "schema": map[string]any{"type": "string"}},
					},
					"responses": map[string]any{
						"200": map[string]any{
							"description": "Sous-titre",
							"content": map[string]any{
								"application/x-subrip": map[string]any{"schema": map[string]any{"type": "string", "format": "binary"}},
							},
						},
						"204": map[string]any{"description": "Aucun sous-titre exploitable"},
						"400": jsonErr,
						"404": jsonErr,
						"502": jsonErr,
						"504": jsonErr,
					},
				},
			},
			"/api/v1/catalogs/{catalog}/cache": map[string]any{
				"delete": map[string]any{
					"parameters": []any{catalogParam},
					"responses": map[string]any{
						"204": map[string]any{"description": "Caches vidés"},
						"404": jsonErr,
					},
				},
			},
		},
	}

	httpjson.Write(w, http.StatusOK, doc)
}

func (s *Server) catalogNames() []string {
	if s.catalogs == nil {
		return nil
	}
	return s.catalogs.Names()
}

func anySlice(in []string) []any {
	out := make([]any, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	return out
}
