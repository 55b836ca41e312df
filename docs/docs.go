// Package docs registers the OpenAPI description served at /swagger/.
// Regenerate with: swag init -g cmd/api/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/decisions": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Create a decision",
                "parameters": [{"description": "Decision and options", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Invalid request"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/decisions/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Get a decision",
                "parameters": [{"type": "string", "description": "Decision ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/decisions/{id}/constraints": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Submit a constraint",
                "parameters": [
                    {"type": "string", "description": "Decision ID", "name": "id", "in": "path", "required": true},
                    {"description": "Constraint", "name": "request", "in": "body", "required": true, "schema": {"type": "object"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Invalid constraint"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Decision already resolved or being resolved"}
                }
            }
        },
        "/decisions/{id}/resolve": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Resolve a decision",
                "parameters": [{"type": "string", "description": "Decision ID", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not found"},
                    "409": {"description": "Already resolving or resolved"},
                    "422": {"description": "Every option was vetoed"}
                }
            }
        },
        "/decisions/{id}/result": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Get a decision result",
                "parameters": [{"type": "string", "description": "Decision ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/decisions/{id}/alternatives/{optionId}/explanation": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Decisions"],
                "summary": "Explain an alternative",
                "parameters": [
                    {"type": "string", "description": "Decision ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Option ID", "name": "optionId", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/groups/{id}/fairness/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Fairness"],
                "summary": "Explain my fairness",
                "parameters": [{"type": "string", "description": "Group ID", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["System"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}, "503": {"description": "Unhealthy"}}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and JWT token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Group Decision API",
	Description:      "Resolves group decisions by maximizing fairness-weighted satisfaction.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
