package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Chronicle API",
        "description": "Calendar backend: recurrence expansion, interval queries and alarms",
        "version": "0.1.0"
    },
    "basePath": "/",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Token issuance"},
        {"name": "Events", "description": "Event lifecycle"},
        {"name": "Occurrences", "description": "Interval queries over a calendar"},
        {"name": "Alarms", "description": "Active alarm scanning"},
        {"name": "Exports", "description": "Agenda downloads"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/calendars/{calendarId}/events": {
            "post": {
                "tags": ["Events"],
                "summary": "Create event",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveEventRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendars/{calendarId}/events/{eventId}": {
            "get": {
                "tags": ["Events"],
                "summary": "Get event",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "eventId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found"}
                }
            },
            "put": {
                "tags": ["Events"],
                "summary": "Update event",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "eventId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveEventRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Delete event",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "eventId", "in": "path", "required": true, "type": "string"},
                    {"name": "silent", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/calendars/{calendarId}/events/{eventId}/move": {
            "post": {
                "tags": ["Events"],
                "summary": "Move event to another calendar",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "eventId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendars/{calendarId}/occurrences": {
            "get": {
                "tags": ["Occurrences"],
                "summary": "List occurrences in a half-open interval",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "start", "in": "query", "required": true, "type": "string"},
                    {"name": "end", "in": "query", "required": true, "type": "string"},
                    {"name": "expand", "in": "query", "type": "boolean"},
                    {"name": "alarms", "in": "query", "type": "boolean"},
                    {"name": "hide_exceptions", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Store unavailable"}
                }
            }
        },
        "/calendars/{calendarId}/alarms": {
            "get": {
                "tags": ["Alarms"],
                "summary": "List active alarms",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "at", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/calendars/{calendarId}/export": {
            "get": {
                "tags": ["Exports"],
                "summary": "Export agenda as CSV or PDF",
                "parameters": [
                    {"name": "calendarId", "in": "path", "required": true, "type": "string"},
                    {"name": "start", "in": "query", "required": true, "type": "string"},
                    {"name": "end", "in": "query", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "SaveEventRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "location": {"type": "string"},
                "all_day": {"type": "boolean"},
                "start_at": {"type": "string"},
                "end_at": {"type": "string"},
                "alarm": {"type": "integer"},
                "recur_type": {"type": "string"},
                "recur_interval": {"type": "integer"},
                "recur_count": {"type": "integer"},
                "recur_end_at": {"type": "string"},
                "recur_days": {"type": "integer"},
                "base_id": {"type": "string"},
                "original_date": {"type": "string"},
                "exception_dates": {"type": "array", "items": {"type": "string"}},
                "exception_overrides": {"type": "object"},
                "tags": {"type": "array", "items": {"type": "string"}}
            },
            "required": ["title", "start_at", "end_at"]
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
