package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the complete set of environment variables recognized by the
// server (§6), loaded eagerly and validated at startup.
type Config struct {
	Port          int
	DataDir       string
	DBPath        string
	JWTSecret     string
	AdminPassword string
	APIKey        string

	WhisperModel       string
	WhisperServerURL   string
	ModelUnloadMinutes int
	JobRetentionDays   int
	MaxUploadSizeMB    int64

	QueueCapacity  int
	PublicBaseURL  string
	AllowedOrigins []string
}

// recognized is the full set of environment variable names this server
// understands. Unrecognized keys are rejected at startup rather than
// silently ignored.
var recognized = map[string]bool{
	"ADMIN_PASSWORD":       true,
	"API_KEY":              true,
	"WHISPER_MODEL":        true,
	"WHISPER_SERVER_URL":   true,
	"MODEL_UNLOAD_MINUTES": true,
	"JOB_RETENTION_DAYS":   true,
	"MAX_UPLOAD_SIZE_MB":   true,
	"DATA_DIR":             true,
	"PORT":                 true,
	"DB_PATH":              true,
	"JWT_SECRET":           true,
	"QUEUE_CAPACITY":       true,
	"PUBLIC_BASE_URL":      true,
	"ALLOWED_ORIGINS":      true,
}

// envPrefix namespaces an optional override form of every recognized
// variable (TRANSCRIBE_ADMIN_PASSWORD overrides ADMIN_PASSWORD, etc.)
// so operators running this alongside other services can avoid bare-name
// collisions. Only the namespaced form is validated against the
// recognized set at startup — see rejectUnknownKeys.
const envPrefix = "TRANSCRIBE_"

// Load reads configuration from the environment, and calls log.Fatalf
// on any missing required value, malformed numeric value, or
// unrecognized TRANSCRIBE_-prefixed key.
func Load() *Config {
	rejectUnknownKeys()

	adminPassword := getEnv("ADMIN_PASSWORD", "")
	if adminPassword == "" {
		log.Fatalf("ADMIN_PASSWORD is required")
	}

	dataDir := getEnv("DATA_DIR", "/data")

	port, err := strconv.Atoi(getEnv("PORT", "8000"))
	if err != nil {
		log.Fatalf("invalid PORT: %v", err)
	}
	unloadMinutes, err := strconv.Atoi(getEnv("MODEL_UNLOAD_MINUTES", "5"))
	if err != nil {
		log.Fatalf("invalid MODEL_UNLOAD_MINUTES: %v", err)
	}
	retentionDays, err := strconv.Atoi(getEnv("JOB_RETENTION_DAYS", "7"))
	if err != nil {
		log.Fatalf("invalid JOB_RETENTION_DAYS: %v", err)
	}
	maxUploadMB, err := strconv.ParseInt(getEnv("MAX_UPLOAD_SIZE_MB", "10240"), 10, 64)
	if err != nil {
		log.Fatalf("invalid MAX_UPLOAD_SIZE_MB: %v", err)
	}
	queueCapacity, err := strconv.Atoi(getEnv("QUEUE_CAPACITY", "64"))
	if err != nil {
		log.Fatalf("invalid QUEUE_CAPACITY: %v", err)
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			log.Fatalf("failed to generate random JWT secret: %v", err)
		}
		jwtSecret = hex.EncodeToString(b)
		log.Println("WARNING: JWT_SECRET not set, using random secret. Admin sessions will not survive restarts.")
	}

	publicBaseURL := getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", port))
	allowedOrigins := strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ",")

	return &Config{
		Port:               port,
		DataDir:            dataDir,
		DBPath:             getEnv("DB_PATH", dataDir+"/jobs.db"),
		JWTSecret:          jwtSecret,
		AdminPassword:      adminPassword,
		APIKey:             getEnv("API_KEY", ""),
		WhisperModel:       getEnv("WHISPER_MODEL", "large-v3"),
		WhisperServerURL:   getEnv("WHISPER_SERVER_URL", "http://127.0.0.1:8081"),
		ModelUnloadMinutes: unloadMinutes,
		JobRetentionDays:   retentionDays,
		MaxUploadSizeMB:    maxUploadMB,
		QueueCapacity:      queueCapacity,
		PublicBaseURL:      publicBaseURL,
		AllowedOrigins:     allowedOrigins,
	}
}

// IdleThreshold returns the configured model idle-unload window.
func (c *Config) IdleThreshold() time.Duration {
	return time.Duration(c.ModelUnloadMinutes) * time.Minute
}

// RetentionHorizon returns the configured job retention window.
func (c *Config) RetentionHorizon() time.Duration {
	return time.Duration(c.JobRetentionDays) * 24 * time.Hour
}

// MaxUploadBytes returns the configured upload cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadSizeMB * 1024 * 1024
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// rejectUnknownKeys fails startup if a TRANSCRIBE_-namespaced variable
// is set but not among the recognized names — catches deployment typos
// instead of silently ignoring them.
func rejectUnknownKeys() {
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		name := strings.TrimPrefix(key, envPrefix)
		if !recognized[name] {
			log.Fatalf("unrecognized configuration key: %s", key)
		}
	}
}
