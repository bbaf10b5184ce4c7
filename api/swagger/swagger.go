package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "CampusHQ Registrar API",
        "description": "Enrollment ledger, grade aggregation and transcripts for the administrative portal",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Registrations", "description": "Enrollment ledger"},
        {"name": "Grades", "description": "Assessments and grade sheets"},
        {"name": "Transcripts", "description": "GPA and academic records"},
        {"name": "Sections", "description": "Scheduled course sections"},
        {"name": "Courses", "description": "Course catalog and prerequisites"},
        {"name": "Departments", "description": "Academic departments"},
        {"name": "Semesters", "description": "Terms and registration windows"},
        {"name": "Announcements", "description": "Portal announcements"}
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/registrations": {
            "get": {
                "tags": ["Registrations"],
                "summary": "List registrations",
                "parameters": [
                    {"name": "studentId", "in": "query", "type": "string"},
                    {"name": "sectionId", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Registrations"],
                "summary": "Register a student into a section",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already registered, already completed or section full"},
                    "422": {"description": "Prerequisite not met or registration window closed"}
                }
            }
        },
        "/students/{studentId}/registrations/{sectionId}": {
            "delete": {
                "tags": ["Registrations"],
                "summary": "Drop a registration",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "sectionId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Dropped", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "No active registration"}
                }
            }
        },
        "/sections/{id}/roster": {
            "get": {
                "tags": ["Registrations"],
                "summary": "Section roster",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/sections/{id}/grades": {
            "get": {
                "tags": ["Grades"],
                "summary": "Read a section's grade sheet",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Grades"],
                "summary": "Save a section's grade sheet atomically",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveScoresRequest"}}
                ],
                "responses": {
                    "200": {"description": "Saved", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Score out of range"}
                }
            }
        },
        "/students/{studentId}/gpa": {
            "get": {
                "tags": ["Transcripts"],
                "summary": "Student GPA",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/transcript": {
            "get": {
                "tags": ["Transcripts"],
                "summary": "Full academic transcript",
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/students/{studentId}/transcript/export": {
            "get": {
                "tags": ["Transcripts"],
                "summary": "Export transcript as CSV or PDF",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "studentId", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        }
    },
    "definitions": {
        "RegisterRequest": {
            "type": "object",
            "required": ["student_id", "section_id"],
            "properties": {
                "student_id": {"type": "string"},
                "section_id": {"type": "string"}
            }
        },
        "SaveScoresRequest": {
            "type": "object",
            "properties": {
                "scores": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "registration_id": {"type": "string"},
                            "assessment_id": {"type": "string"},
                            "score": {"type": "number"}
                        }
                    }
                },
                "finals": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "registration_id": {"type": "string"},
                            "overall_percentage": {"type": "number"},
                            "final_letter_grade": {"type": "string"}
                        }
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "object"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
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
