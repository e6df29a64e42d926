package api

// openAPIDocument is the static OpenAPI description served to the swagger
// UI. It tracks the routes registered in RegisterRoutes.
const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": {
    "title": "Payrail Saga Orchestration API",
    "description": "Saga orchestration and transaction repair for two-leg payment flows.",
    "version": "1.0"
  },
  "paths": {
    "/api/v1/sagas": {
      "post": {
        "summary": "Submit a payment saga for execution",
        "parameters": [
          {"name": "X-Idempotency-Key", "in": "header", "required": false, "schema": {"type": "string"}}
        ],
        "requestBody": {"content": {"application/json": {"schema": {"$ref": "#/components/schemas/SagaSubmitRequest"}}}},
        "responses": {
          "202": {"description": "Saga accepted"},
          "400": {"description": "Invalid request"},
          "409": {"description": "Idempotency key conflict"}
        }
      },
      "get": {
        "summary": "List sagas",
        "parameters": [
          {"name": "status", "in": "query", "schema": {"type": "string"}},
          {"name": "tenant_id", "in": "query", "schema": {"type": "string"}},
          {"name": "correlation_id", "in": "query", "schema": {"type": "string"}},
          {"name": "limit", "in": "query", "schema": {"type": "integer"}},
          {"name": "offset", "in": "query", "schema": {"type": "integer"}}
        ],
        "responses": {"200": {"description": "Paginated saga list"}}
      }
    },
    "/api/v1/sagas/{id}": {
      "get": {
        "summary": "Get one saga",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Saga state"}, "404": {"description": "Not found"}}
      }
    },
    "/api/v1/sagas/{id}/cancel": {
      "post": {
        "summary": "Cancel a saga before dispatch, or compensate the completed prefix",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"202": {"description": "Cancelled"}, "404": {"description": "Not found"}, "409": {"description": "Cancellation rejected"}}
      }
    },
    "/api/v1/sagas/{id}/events": {
      "get": {
        "summary": "Get the event history of one saga in version order",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Event stream"}, "404": {"description": "Not found"}}
      }
    },
    "/api/v1/sagas/{id}/repair": {
      "get": {
        "summary": "Get the repair record created for a failed saga",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Repair record"}, "404": {"description": "Not found"}}
      }
    },
    "/api/v1/repairs": {
      "get": {
        "summary": "List transaction repairs",
        "parameters": [
          {"name": "status", "in": "query", "schema": {"type": "string"}},
          {"name": "repair_type", "in": "query", "schema": {"type": "string"}},
          {"name": "assigned_to", "in": "query", "schema": {"type": "string"}},
          {"name": "tenant_id", "in": "query", "schema": {"type": "string"}},
          {"name": "limit", "in": "query", "schema": {"type": "integer"}},
          {"name": "offset", "in": "query", "schema": {"type": "integer"}}
        ],
        "responses": {"200": {"description": "Paginated repair list"}}
      }
    },
    "/api/v1/repairs/summary": {
      "get": {
        "summary": "Settlement summary of the repair queue",
        "responses": {"200": {"description": "Aggregated counts and amounts"}}
      }
    },
    "/api/v1/repairs/{id}": {
      "get": {
        "summary": "Get one repair record",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Repair record"}, "404": {"description": "Not found"}}
      }
    },
    "/api/v1/repairs/{id}/assign": {
      "post": {
        "summary": "Assign a repair to an operator",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Assigned"}, "409": {"description": "Repair already closed"}}
      }
    },
    "/api/v1/repairs/{id}/start": {
      "post": {
        "summary": "Mark an assigned repair as in progress",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "In progress"}}
      }
    },
    "/api/v1/repairs/{id}/resolve": {
      "post": {
        "summary": "Close a repair with a resolution",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Resolved"}, "409": {"description": "Repair already closed"}}
      }
    },
    "/api/v1/repairs/{id}/retry": {
      "post": {
        "summary": "Schedule a manual repair re-attempt",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"202": {"description": "Retry scheduled"}, "409": {"description": "Retry budget exhausted"}}
      }
    },
    "/api/v1/repairs/{id}/cancel": {
      "post": {
        "summary": "Close a repair without resolution",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "Cancelled"}}
      }
    },
    "/health": {"get": {"summary": "Liveness probe", "responses": {"200": {"description": "Alive"}}}},
    "/ready": {"get": {"summary": "Readiness probe", "responses": {"200": {"description": "Ready"}}}}
  },
  "components": {
    "schemas": {
      "SagaSubmitRequest": {
        "type": "object",
        "required": ["name", "steps"],
        "properties": {
          "name": {"type": "string"},
          "correlation_id": {"type": "string"},
          "tenant_id": {"type": "string"},
          "business_unit": {"type": "string"},
          "step_timeout_ms": {"type": "integer"},
          "max_retries": {"type": "integer"},
          "steps": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["step_type", "service_name", "endpoint"],
              "properties": {
                "step_type": {"type": "string", "enum": ["DEBIT", "CREDIT", "CLEARING_SUBMIT"]},
                "service_name": {"type": "string"},
                "endpoint": {"type": "string"},
                "compensation_endpoint": {"type": "string"},
                "input": {"type": "object"},
                "timeout_ms": {"type": "integer"},
                "max_retries": {"type": "integer"}
              }
            }
          }
        }
      }
    }
  }
}`
