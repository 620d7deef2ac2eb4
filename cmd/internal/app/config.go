package app

import (
	"time"

	"memberdesk/cmd/internal/records"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int

	// PublicBaseURL prefixes every claim link sent to members.
	PublicBaseURL string
	TrustProxy    bool

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32
	AutoMigrate bool

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool

	// If true, MEMBERDESK_TOKEN_HMAC_KEY must be set and secret hashing must be HMAC-based.
	RequireTokenHMAC bool

	StoreTimeout time.Duration

	StaffJWTSecret   string
	StaffJWTIssuer   string
	StaffJWTAudience string

	RateLimitTokens   int
	RateLimitInterval time.Duration

	// NATSURL enables JetStream notification publishing; empty logs notifications instead.
	NATSURL     string
	NATSSubject string

	// S3.Bucket enables object storage for uploads; empty keeps files in memory.
	S3 records.S3Config

	OTelEndpoint    string
	OTelServiceName string
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("MEMBERDESK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("MEMBERDESK_LOG_LEVEL", "info"),
		LogFormat: EnvString("MEMBERDESK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("MEMBERDESK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("MEMBERDESK_HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      EnvDuration("MEMBERDESK_HTTP_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:       EnvDuration("MEMBERDESK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    EnvInt("MEMBERDESK_HTTP_MAX_HEADER_BYTES", 1<<20),

		PublicBaseURL: EnvString("MEMBERDESK_PUBLIC_BASE_URL", "http://localhost:8080"),
		TrustProxy:    EnvBool("MEMBERDESK_TRUST_PROXY", false),

		DatabaseURL: EnvString("MEMBERDESK_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("MEMBERDESK_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("MEMBERDESK_DB_MIN_CONNS", 0),
		AutoMigrate: EnvBool("MEMBERDESK_AUTO_MIGRATE", false),

		ReadinessRequireDB: EnvBool("MEMBERDESK_READINESS_REQUIRE_DB", false),
		RequireTokenHMAC:   EnvBool("MEMBERDESK_REQUIRE_TOKEN_HMAC", false),

		StoreTimeout: EnvDuration("MEMBERDESK_STORE_TIMEOUT", 5*time.Second),

		StaffJWTSecret:   EnvString("MEMBERDESK_STAFF_JWT_SECRET", ""),
		StaffJWTIssuer:   EnvString("MEMBERDESK_STAFF_JWT_ISSUER", "memberdesk"),
		StaffJWTAudience: EnvString("MEMBERDESK_STAFF_JWT_AUDIENCE", "memberdesk-staff"),

		RateLimitTokens:   EnvInt("MEMBERDESK_RATE_LIMIT_TOKENS", 30),
		RateLimitInterval: EnvDuration("MEMBERDESK_RATE_LIMIT_INTERVAL", time.Minute),

		NATSURL:     EnvString("MEMBERDESK_NATS_URL", ""),
		NATSSubject: EnvString("MEMBERDESK_NATS_SUBJECT", ""),

		S3: records.S3Config{
			Endpoint:       EnvString("MEMBERDESK_S3_ENDPOINT", ""),
			Region:         EnvString("MEMBERDESK_S3_REGION", "us-east-1"),
			Bucket:         EnvString("MEMBERDESK_S3_BUCKET", ""),
			AccessKey:      EnvString("MEMBERDESK_S3_ACCESS_KEY", ""),
			SecretKey:      EnvString("MEMBERDESK_S3_SECRET_KEY", ""),
			ForcePathStyle: EnvBool("MEMBERDESK_S3_FORCE_PATH_STYLE", true),
			DisableTLS:     EnvBool("MEMBERDESK_S3_DISABLE_TLS", false),
		},

		OTelEndpoint:    EnvString("MEMBERDESK_OTEL_EXPORTER_ENDPOINT", ""),
		OTelServiceName: EnvString("MEMBERDESK_OTEL_SERVICE_NAME", "memberdesk"),
	}
}
