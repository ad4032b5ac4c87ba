// Package auth holds the OpenAPI document served under /swagger/.
// Regenerate with: swag init -g internal/auth/http/router.go -o api/auth
package auth

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/marquee"
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
        "/login": {
            "post": {
                "tags": [
                    "Login"
                ],
                "summary": "Password login",
                "responses": {
                    "302": {
                        "description": "Redirect to the next step"
                    },
                    "403": {
                        "description": "CSRF check failed",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Too many requests",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Username",
                        "name": "username",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Password",
                        "name": "password",
                        "in": "formData",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Path to return to after login",
                        "name": "next",
                        "in": "formData",
                        "required": false
                    }
                ],
                "consumes": [
                    "application/x-www-form-urlencoded"
                ]
            }
        },
        "/mfa": {
            "post": {
                "tags": [
                    "Login"
                ],
                "summary": "Submit a TOTP code",
                "responses": {
                    "302": {
                        "description": "Redirect to the next page"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "TOTP code",
                        "name": "code",
                        "in": "formData",
                        "required": true
                    }
                ],
                "consumes": [
                    "application/x-www-form-urlencoded"
                ]
            }
        },
        "/mfa_setup": {
            "get": {
                "tags": [
                    "Login"
                ],
                "summary": "Pending TOTP enrollment",
                "responses": {
                    "200": {
                        "description": "Provisioning URI",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MFASetupResponse"
                        }
                    },
                    "400": {
                        "description": "No pending enrollment",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "produces": [
                    "application/json"
                ]
            },
            "post": {
                "tags": [
                    "Login"
                ],
                "summary": "Confirm TOTP enrollment",
                "responses": {
                    "302": {
                        "description": "Redirect to the next page"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "TOTP code",
                        "name": "code",
                        "in": "formData",
                        "required": true
                    }
                ],
                "consumes": [
                    "application/x-www-form-urlencoded"
                ]
            }
        },
        "/logout": {
            "get": {
                "tags": [
                    "Login"
                ],
                "summary": "Log out",
                "responses": {
                    "302": {
                        "description": "Redirect to /login or the provider's end-session endpoint"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "External provider to sign out of",
                        "name": "provider",
                        "in": "query",
                        "required": false
                    }
                ]
            }
        },
        "/sso/login": {
            "get": {
                "tags": [
                    "SSO"
                ],
                "summary": "Start an external login",
                "responses": {
                    "302": {
                        "description": "Redirect to the provider"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Configured provider name",
                        "name": "provider",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Path to return to after login",
                        "name": "next",
                        "in": "query",
                        "required": false
                    },
                    {
                        "type": "string",
                        "description": "Username, required by Duo",
                        "name": "login_hint",
                        "in": "query",
                        "required": false
                    }
                ]
            }
        },
        "/sso/callback": {
            "get": {
                "tags": [
                    "SSO"
                ],
                "summary": "External login callback",
                "responses": {
                    "302": {
                        "description": "Redirect to the next step"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Authorization code",
                        "name": "code",
                        "in": "query",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "State issued by /sso/login",
                        "name": "state",
                        "in": "query",
                        "required": true
                    }
                ]
            }
        },
        "/sso/link": {
            "post": {
                "tags": [
                    "SSO"
                ],
                "summary": "Link an external identity",
                "responses": {
                    "200": {
                        "description": "Where to send the browser",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RedirectResponse"
                        }
                    },
                    "400": {
                        "description": "Unknown provider",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in or wrong code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "Too many requests",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "description": "Provider and re-auth code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.LinkRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/webauthn/register/options": {
            "post": {
                "tags": [
                    "WebAuthn"
                ],
                "summary": "Passkey registration options",
                "responses": {
                    "200": {
                        "description": "Credential creation options",
                        "schema": {
                            "type": "object"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/webauthn/register/verify": {
            "post": {
                "tags": [
                    "WebAuthn"
                ],
                "summary": "Finish passkey registration",
                "responses": {
                    "201": {
                        "description": "Registered credential",
                        "schema": {
                            "$ref": "#/definitions/authsdk.CredentialView"
                        }
                    },
                    "400": {
                        "description": "Challenge missing, expired or already used",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Display name for the credential",
                        "name": "name",
                        "in": "query",
                        "required": false
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/webauthn/login/options": {
            "post": {
                "tags": [
                    "WebAuthn"
                ],
                "summary": "Passkey login options",
                "responses": {
                    "200": {
                        "description": "Credential request options",
                        "schema": {
                            "type": "object"
                        }
                    },
                    "400": {
                        "description": "Pending login expired or has no passkeys",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "produces": [
                    "application/json"
                ]
            }
        },
        "/webauthn/login/verify": {
            "post": {
                "tags": [
                    "WebAuthn"
                ],
                "summary": "Finish passkey login",
                "responses": {
                    "200": {
                        "description": "Next step",
                        "schema": {
                            "$ref": "#/definitions/authsdk.LoginResultResponse"
                        }
                    },
                    "401": {
                        "description": "Assertion rejected",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Path to return to after login",
                        "name": "next",
                        "in": "query",
                        "required": false
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/me": {
            "get": {
                "tags": [
                    "Account"
                ],
                "summary": "Current identity",
                "responses": {
                    "200": {
                        "description": "Identity",
                        "schema": {
                            "$ref": "#/definitions/authsdk.MeResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/sessions": {
            "get": {
                "tags": [
                    "Sessions"
                ],
                "summary": "List sessions",
                "responses": {
                    "200": {
                        "description": "Active sessions",
                        "schema": {
                            "$ref": "#/definitions/authsdk.SessionsResponse"
                        }
                    },
                    "401": {
                        "description": "Not signed in",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/sessions/{jti}": {
            "delete": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Revoke a session",
                "responses": {
                    "204": {
                        "description": "Revoked"
                    },
                    "404": {
                        "description": "No such session",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Session id",
                        "name": "jti",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ]
            }
        },
        "/v1/sessions/revoke-others": {
            "post": {
                "tags": [
                    "Sessions"
                ],
                "summary": "Sign out other sessions",
                "responses": {
                    "200": {
                        "description": "Number of sessions revoked",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RevokedResponse"
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/account/password": {
            "post": {
                "tags": [
                    "Account"
                ],
                "summary": "Change password",
                "responses": {
                    "200": {
                        "description": "Sessions revoked",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RevokedResponse"
                        }
                    },
                    "400": {
                        "description": "New password rejected",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "Wrong password or code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "423": {
                        "description": "Locked out",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "description": "Passwords and re-auth code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.PasswordChangeRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/account/mfa/disable": {
            "post": {
                "tags": [
                    "Account"
                ],
                "summary": "Disable TOTP",
                "responses": {
                    "204": {
                        "description": "Disabled"
                    },
                    "401": {
                        "description": "Wrong code",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "description": "Current TOTP code",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.ReauthRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/v1/account/identities": {
            "get": {
                "tags": [
                    "Account"
                ],
                "summary": "List linked identities",
                "responses": {
                    "200": {
                        "description": "Linked identities",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/authsdk.IdentityView"
                            }
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/account/identities/{provider}": {
            "delete": {
                "tags": [
                    "Account"
                ],
                "summary": "Unlink an external identity",
                "responses": {
                    "204": {
                        "description": "Unlinked"
                    },
                    "404": {
                        "description": "Not linked",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "Last sign-in method",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Provider name",
                        "name": "provider",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Re-auth code",
                        "name": "request",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/authsdk.ReauthRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/v1/account/webauthn": {
            "get": {
                "tags": [
                    "Account"
                ],
                "summary": "List passkeys",
                "responses": {
                    "200": {
                        "description": "Registered credentials",
                        "schema": {
                            "type": "array",
                            "items": {
                                "$ref": "#/definitions/authsdk.CredentialView"
                            }
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/account/webauthn/{id}": {
            "delete": {
                "tags": [
                    "Account"
                ],
                "summary": "Delete a passkey",
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "404": {
                        "description": "Unknown credential",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Credential id (base64url)",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Re-auth code",
                        "name": "request",
                        "in": "body",
                        "required": false,
                        "schema": {
                            "$ref": "#/definitions/authsdk.ReauthRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/v1/admin/accounts/{id}": {
            "delete": {
                "tags": [
                    "Admin"
                ],
                "summary": "Delete an account",
                "description": "Deletes the account with its sessions, linked identities and passkeys.",
                "responses": {
                    "204": {
                        "description": "Deleted"
                    },
                    "404": {
                        "description": "No such account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ]
            }
        },
        "/v1/admin/accounts/{id}/ban": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Ban an account",
                "responses": {
                    "204": {
                        "description": "Banned"
                    },
                    "403": {
                        "description": "Not an admin",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    },
                    "404": {
                        "description": "No such account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ]
            }
        },
        "/v1/admin/accounts/{id}/unban": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Unban an account",
                "responses": {
                    "204": {
                        "description": "Unbanned"
                    },
                    "404": {
                        "description": "No such account",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ]
            }
        },
        "/v1/admin/accounts/{id}/groups": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Replace groups",
                "responses": {
                    "204": {
                        "description": "Updated"
                    },
                    "400": {
                        "description": "Invalid group name",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "New groups",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.GroupsRequest"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/v1/admin/accounts/{id}/revoke-sessions": {
            "post": {
                "tags": [
                    "Admin"
                ],
                "summary": "Sign an account out everywhere",
                "responses": {
                    "200": {
                        "description": "Sessions revoked",
                        "schema": {
                            "$ref": "#/definitions/authsdk.RevokedResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "Account id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/v1/admin/settings": {
            "get": {
                "tags": [
                    "Admin"
                ],
                "summary": "Read settings",
                "responses": {
                    "200": {
                        "description": "All settings",
                        "schema": {
                            "$ref": "#/definitions/authsdk.SettingsResponse"
                        }
                    }
                },
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "produces": [
                    "application/json"
                ]
            },
            "put": {
                "tags": [
                    "Admin"
                ],
                "summary": "Write settings",
                "responses": {
                    "200": {
                        "description": "All settings after the write",
                        "schema": {
                            "$ref": "#/definitions/authsdk.SettingsResponse"
                        }
                    },
                    "400": {
                        "description": "Invalid setting",
                        "schema": {
                            "$ref": "#/definitions/authsdk.ErrorResponse"
                        }
                    }
                },
                "parameters": [
                    {
                        "description": "Settings to write",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/authsdk.SettingsResponse"
                        }
                    }
                ],
                "security": [
                    {
                        "SessionAuth": []
                    }
                ],
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ]
            }
        },
        "/livez": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Liveness Check Endpoint",
                "responses": {
                    "200": {
                        "description": "status, uptime, version",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                },
                "produces": [
                    "application/json"
                ]
            }
        },
        "/readyz": {
            "get": {
                "tags": [
                    "Health"
                ],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {
                        "description": "status, uptime, version, checks",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "service not ready",
                        "schema": {
                            "$ref": "#/definitions/authsdk.HealthResponse"
                        }
                    }
                },
                "produces": [
                    "application/json"
                ]
            }
        }
    },
    "definitions": {
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "error_description": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthChecks": {
            "type": "object",
            "properties": {
                "database": {
                    "type": "string"
                },
                "redis": {
                    "type": "string"
                }
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "uptime": {
                    "type": "string"
                },
                "version": {
                    "type": "string"
                },
                "checks": {
                    "$ref": "#/definitions/authsdk.HealthChecks"
                }
            }
        },
        "authsdk.MeResponse": {
            "type": "object",
            "properties": {
                "account_id": {
                    "type": "string"
                },
                "username": {
                    "type": "string"
                },
                "groups": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "session_id": {
                    "type": "string"
                },
                "amr": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "mfa_enabled": {
                    "type": "boolean"
                }
            }
        },
        "authsdk.SessionView": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "current": {
                    "type": "boolean"
                },
                "user_agent": {
                    "type": "string"
                },
                "ip": {
                    "type": "string"
                },
                "amr": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "last_seen_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "expires_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.SessionsResponse": {
            "type": "object",
            "properties": {
                "sessions": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/authsdk.SessionView"
                    }
                }
            }
        },
        "authsdk.RevokedResponse": {
            "type": "object",
            "properties": {
                "revoked": {
                    "type": "integer"
                }
            }
        },
        "authsdk.ReauthRequest": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.PasswordChangeRequest": {
            "type": "object",
            "properties": {
                "current_password": {
                    "type": "string"
                },
                "new_password": {
                    "type": "string"
                },
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.LinkRequest": {
            "type": "object",
            "properties": {
                "provider": {
                    "type": "string"
                },
                "code": {
                    "type": "string"
                }
            }
        },
        "authsdk.RedirectResponse": {
            "type": "object",
            "properties": {
                "redirect_url": {
                    "type": "string"
                }
            }
        },
        "authsdk.MFASetupResponse": {
            "type": "object",
            "properties": {
                "provisioning_uri": {
                    "type": "string"
                },
                "issuer": {
                    "type": "string"
                },
                "account": {
                    "type": "string"
                }
            }
        },
        "authsdk.LoginResultResponse": {
            "type": "object",
            "properties": {
                "state": {
                    "type": "string"
                },
                "redirect_url": {
                    "type": "string"
                }
            }
        },
        "authsdk.IdentityView": {
            "type": "object",
            "properties": {
                "provider": {
                    "type": "string"
                },
                "subject": {
                    "type": "string"
                },
                "email": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.CredentialView": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                },
                "device_type": {
                    "type": "string"
                },
                "created_at": {
                    "type": "string",
                    "format": "date-time"
                },
                "last_used_at": {
                    "type": "string",
                    "format": "date-time"
                }
            }
        },
        "authsdk.GroupsRequest": {
            "type": "object",
            "properties": {
                "groups": {
                    "type": "array",
                    "items": {
                        "type": "string"
                    }
                }
            }
        },
        "authsdk.SettingsResponse": {
            "type": "object",
            "properties": {
                "settings": {
                    "type": "object",
                    "additionalProperties": {
                        "type": "string"
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "SessionAuth": {
            "description": "Session token. Format: \"Bearer {token}\". Browsers send the marquee_session cookie instead.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Marquee Authentication API",
	Description:      "Session and credential endpoints for Marquee: password login, TOTP, passkeys and external identity providers.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
