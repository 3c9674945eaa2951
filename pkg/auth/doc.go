// Package auth holds the identity primitives of larder: the closed role set,
// session token claims, the HS256 token codec and bcrypt password hashing.
//
// # Tokens
//
// Session tokens are JWTs signed with a single server secret. They carry the
// user ID, the family space (tenant) ID and the role at issue time:
//
//	codec := auth.NewTokenCodec(secret)
//	token, err := codec.Sign(auth.Subject{UserID: u.ID, TenantID: t.ID, Role: auth.RoleMember}, false)
//	claims, ok := codec.Verify(token)
//
// Verify never returns an error. Any failure (bad signature, wrong issuer,
// expired, malformed payload) yields ok == false, so callers cannot leak
// which check failed.
//
// The role inside a token is informational. Authorization always uses the
// role on the current membership row, resolved by package identity.
//
// # Roles
//
// Role is a closed set: owner, admin, member. Unknown strings never parse.
//
//	role, err := auth.ParseRole("admin")
//	role.IsAdmin() // true for owner and admin
package auth
