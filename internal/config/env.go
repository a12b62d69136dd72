package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Env struct {
	AppAddr string
	GinMode string

	DBDSN string

	JWTSecret string
	JWTTTL    time.Duration

	CORSAllowedOrigins []string
	// TenantBaseDomain is the host suffix below which a subdomain names a tenant.
	TenantBaseDomain string

	LogLevel  string
	LogFormat string

	ExportPDFMaxRows  int
	ExportJSONMaxRows int
	ExportFileMaxRows int
	ExportRatePerMin  int

	// PinUsersMode controls the sticky-top rule for the users table:
	// "off", "default" (unsorted, unfiltered view only) or "always".
	PinUsersMode string
	PinUsersID   int64
}

// devJWTSecret signs tokens in debug and test mode when JWT_SECRET is unset.
// Release mode refuses to start without a real secret.
const devJWTSecret = "hive-dev-secret"

var errMissingJWTSecret = errors.New("JWT_SECRET must be set when GIN_MODE=release")

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// LoadEnv reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real env vars win.
func LoadEnv() Env {
	_ = godotenv.Load()

	appAddr := get("APP_ADDR", ":8080")

	dsn := get("DB_DSN", "")
	if dsn == "" {
		dsn = fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&loc=UTC&charset=utf8mb4&timeout=5s&readTimeout=30s&writeTimeout=30s",
			get("DB_USER", "root"),
			get("DB_PASSWORD", ""),
			get("DB_HOST", "127.0.0.1:3306"),
			get("DB_NAME", "hive"),
		)
	}

	origins := defaultOrigins
	if raw := get("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		origins = nil
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	ginMode := get("GIN_MODE", "")
	secret := get("JWT_SECRET", "")
	if secret == "" && ginMode != "release" {
		secret = devJWTSecret
	}

	return Env{
		AppAddr:            appAddr,
		GinMode:            ginMode,
		DBDSN:              dsn,
		JWTSecret:          secret,
		JWTTTL:             getDuration("JWT_TTL", 24*time.Hour),
		CORSAllowedOrigins: origins,
		TenantBaseDomain:   strings.ToLower(get("TENANT_BASE_DOMAIN", "localhost")),
		LogLevel:           get("LOG_LEVEL", "info"),
		LogFormat:          get("LOG_FORMAT", "console"),
		ExportPDFMaxRows:   getInt("EXPORT_PDF_MAX_ROWS", 5000),
		ExportJSONMaxRows:  getInt("EXPORT_JSON_MAX_ROWS", 10000),
		ExportFileMaxRows:  getInt("EXPORT_FILE_MAX_ROWS", 100000),
		ExportRatePerMin:   getInt("EXPORT_RATE_PER_MIN", 30),
		PinUsersMode:       strings.ToLower(get("PIN_USERS_MODE", "default")),
		PinUsersID:         int64(getInt("PIN_USERS_ID", 1)),
	}
}

// Validate reports settings the server must not start with.
func (e Env) Validate() error {
	if e.GinMode == "release" && (e.JWTSecret == "" || e.JWTSecret == devJWTSecret) {
		return errMissingJWTSecret
	}
	return nil
}

func get(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getInt(key string, fallback int) int {
	v := get(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := get(key, "")
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
