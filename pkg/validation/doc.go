// Package validation checks request fields before they reach the account
// and member flows.
//
// # Usage
//
//	v := validation.NewValidator()
//	v.Length("name", in.Name, 1, 200)
//	v.Length("password", in.Password, 6, 200)
//	if err := v.Err(); err != nil {
//		// err is a *validation.Error; errors.As it to list field errors
//	}
//
// # Rules
//
// Length counts characters, not bytes, and trims surrounding whitespace
// first. OneOf compares exactly. All failures are collected so a client can
// fix every field in one round trip; Error() returns the first message.
package validation
