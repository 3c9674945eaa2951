// Package audit records security events: signups, logins, logouts, password
// changes and family membership changes.
//
// Events are written as JSON lines by a FileLogger, mirrored into the
// structured application log by a StructuredLogger, or both through a
// MultiLogger. Secrets, tokens and password hashes are never part of an
// event.
//
//	fl, err := audit.NewFileLogger(audit.FileLoggerConfig{BasePath: "/var/log/larder"})
//	if err != nil {
//		return err
//	}
//	trail := audit.NewMultiLogger(fl, audit.NewStructuredLogger(logger))
//
//	trail.Log(ctx, audit.FromRequest(r, audit.EventTypeAuthLogin, audit.EventStatusSuccess))
package audit
