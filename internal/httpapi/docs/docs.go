// Package docs holds the OpenAPI description served under /swagger when the
// binary is built with -tags=swagger. Regenerate with `make swagger-gen`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "dermd maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/predict": {
            "post": {
                "description": "Upload an image as multipart field \"image\"; returns the most likely condition with per-label probabilities.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["inference"],
                "summary": "Classify a skin image",
                "parameters": [
                    {
                        "type": "file",
                        "description": "Image (JPEG, PNG or GIF)",
                        "name": "image",
                        "in": "formData",
                        "required": true
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.PredictResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/labels": {
            "get": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "List class labels",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.LabelsResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "Model lifecycle status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/models": {
            "get": {
                "produces": ["application/json"],
                "tags": ["model"],
                "summary": "List model artifacts on disk",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ModelsResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "types.PredictResponse": {
            "type": "object",
            "properties": {
                "disease": {"type": "string", "example": "Mange"},
                "confidence": {"type": "number", "example": 0.87},
                "filename": {"type": "string", "example": "rex.jpg"},
                "probabilities": {"type": "object", "additionalProperties": {"type": "number"}},
                "symptoms": {"type": "array", "items": {"type": "string"}},
                "treatment": {"type": "string"},
                "degraded": {"type": "boolean", "example": false}
            }
        },
        "types.LabelsResponse": {
            "type": "object",
            "properties": {
                "labels": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "Model not loaded"},
                "code": {"type": "integer", "example": 503}
            }
        },
        "types.Artifact": {
            "type": "object",
            "properties": {
                "name": {"type": "string", "example": "skin_disease_model.dmz"},
                "path": {"type": "string"},
                "format": {"type": "string", "example": "archive"},
                "size_bytes": {"type": "integer"},
                "mod_time": {"type": "integer"},
                "active": {"type": "boolean"}
            }
        },
        "types.ModelsResponse": {
            "type": "object",
            "properties": {
                "models": {"type": "array", "items": {"$ref": "#/definitions/types.Artifact"}}
            }
        },
        "types.AttemptStatus": {
            "type": "object",
            "properties": {
                "strategy": {"type": "string", "example": "relaxed"},
                "outcome": {"type": "string", "example": "success"},
                "reason": {"type": "string"},
                "notes": {"type": "array", "items": {"type": "string"}},
                "duration_ms": {"type": "integer"}
            }
        },
        "types.FetchStatus": {
            "type": "object",
            "properties": {
                "source": {"type": "string"},
                "bytes_written": {"type": "integer"},
                "succeeded": {"type": "boolean"},
                "content_kind": {"type": "string", "example": "binary"},
                "sha256": {"type": "string"},
                "duration": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "types.ModelStatus": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "format": {"type": "string"},
                "strategy": {"type": "string"},
                "input_shape": {"type": "array", "items": {"type": "integer"}},
                "classes": {"type": "integer"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "example": "ready"},
                "ready": {"type": "boolean"},
                "degraded": {"type": "boolean"},
                "error": {"type": "string"},
                "model": {"$ref": "#/definitions/types.ModelStatus"},
                "labels": {"type": "array", "items": {"type": "string"}},
                "fetch": {"$ref": "#/definitions/types.FetchStatus"},
                "attempts": {"type": "array", "items": {"$ref": "#/definitions/types.AttemptStatus"}},
                "uptime_seconds": {"type": "integer"},
                "predictions": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "dermd API",
	Description:      "Skin condition classification service for companion-animal images.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
