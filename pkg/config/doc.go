// Package config loads larder configuration from environment variables.
//
// Every setting has a default except JWT_SECRET and one of
// FAMILY_MASTER_KEY or FAMILY_MASTER_KEY_HASH.
//
// Server settings:
//
//	HOST="0.0.0.0"
//	PORT="8080"
//	READ_TIMEOUT="15s"
//	WRITE_TIMEOUT="15s"
//	SHUTDOWN_TIMEOUT="30s"
//	TRUSTED_PROXIES=""             # CIDRs allowed to set X-Forwarded-For
//
// Session and family settings:
//
//	ENVIRONMENT="development"      # production, prod, staging mark cookies Secure
//	JWT_SECRET="..."               # at least 32 bytes in production
//	COOKIE_NAME="session"
//	FAMILY_NAME="Family"
//	FAMILY_MASTER_KEY="..."        # or FAMILY_MASTER_KEY_HASH from larder-hashkey
//	MASTER_KEY_BCRYPT_COST="12"
//	PASSWORD_BCRYPT_COST="10"
//
// Store settings:
//
//	STORE_DRIVER="sqlite"          # postgres, sqlite, memory
//	DATABASE_URL="larder.db"
//	STORE_TIMEOUT="3s"
//
// Rate limiting:
//
//	RATE_LIMIT_BACKEND="memory"    # memory, redis
//	REDIS_URL="localhost:6379"
//	RATE_LIMIT_FAIL_OPEN="false"
//	RATE_LIMIT_LOGIN_MAX="5"
//	RATE_LIMIT_LOGIN_WINDOW="15m"
//
// Avatars, audit and observability:
//
//	AVATAR_BUCKET=""               # empty disables presigning
//	S3_ENDPOINT="http://minio:9000"
//	AUDIT_LOG_DIR=""               # empty keeps audit events in the application log only
//	LOG_LEVEL="info"
//	OTEL_ENABLED="false"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//	srv := &http.Server{Addr: cfg.Addr(), ReadTimeout: cfg.Server.ReadTimeout}
package config
