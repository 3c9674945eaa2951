// Package api serves the authentication and family-member endpoints.
//
// # Endpoints
//
// Authentication:
//
//	POST /auth/signup   create an account with the family master key (rate limited by IP)
//	POST /auth/login    sign in (rate limited by IP)
//	POST /auth/logout   clear the session cookie; works without a valid session
//	GET  /auth/me       the resolved caller
//	PUT  /me/password   change password (rate limited by user)
//
// Family members:
//
//	GET    /family/members                 list members (any member)
//	DELETE /family/members/{userId}        remove a member (owner or admin)
//	PATCH  /family/members/{userId}/role   change a member's role (owner)
//
// Operations:
//
//	GET /health/live, /health/ready, /metrics
//
// Every error uses the body {"error":{"code":"...","message":"..."}}.
package api
