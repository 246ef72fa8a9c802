package app

import "time"

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

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// AgentURL is the generation agent endpoint. Empty means the agent is
	// disabled and every delivery cycle reports agent_empty.
	AgentURL string

	// If true:
	// - /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads Config from environment variables with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  EnvString("HAVEN_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("HAVEN_LOG_LEVEL", "info"),
		LogFormat: EnvString("HAVEN_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HAVEN_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HAVEN_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HAVEN_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HAVEN_HTTP_IDLE_TIMEOUT", 60*time.Second),

		MaxHeaderBytes: EnvInt("HAVEN_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: EnvString("HAVEN_DATABASE_URL", ""),
		DBMaxConns:  EnvInt32("HAVEN_DB_MAX_CONNS", 10),
		DBMinConns:  EnvInt32("HAVEN_DB_MIN_CONNS", 0),

		AgentURL: EnvString("HAVEN_AGENT_URL", ""),

		ReadinessRequireDB: EnvBool("HAVEN_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   EnvCSV("HAVEN_CORS_ALLOWED_ORIGINS", ""),
		CORSAllowCredentials: EnvBool("HAVEN_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    EnvInt("HAVEN_CORS_MAX_AGE_SECONDS", 600),
	}
}
