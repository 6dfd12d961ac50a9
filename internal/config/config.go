package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"
)

// Config is the process configuration, read from CHOREQUEST_* environment variables.
type Config struct {
	Port      string
	DBPath    string
	BaseURL   string
	LogLevel  string
	LogFormat string

	// JWTSecret signs bearer tokens. Required outside of tests.
	JWTSecret string
	// Timezone is used when a request carries no X-Timezone header.
	Timezone *time.Location

	PolicyFile string
	Policy     Policy

	S3       S3Config
	Firebase FirebaseConfig
}

type S3Config struct {
	Endpoint      string
	Bucket        string
	Region        string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// Enabled reports whether enough is configured to talk to a bucket.
func (c S3Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

type FirebaseConfig struct {
	// CredentialsJSON is a service account JSON blob, or a path to one.
	CredentialsJSON string
	ProjectID       string
}

func (c FirebaseConfig) Enabled() bool {
	return c.CredentialsJSON != ""
}

// Load reads the environment and the optional policy file.
func Load() (Config, error) {
	cfg := Config{
		Port:       getenv("CHOREQUEST_PORT", "8080"),
		DBPath:     getenv("CHOREQUEST_DB_PATH", "chorequest.db"),
		LogLevel:   os.Getenv("CHOREQUEST_LOG_LEVEL"),
		LogFormat:  getenv("CHOREQUEST_LOG_FORMAT", "text"),
		JWTSecret:  os.Getenv("CHOREQUEST_JWT_SECRET"),
		PolicyFile: os.Getenv("CHOREQUEST_POLICY_FILE"),
		S3: S3Config{
			Endpoint:      os.Getenv("CHOREQUEST_S3_ENDPOINT"),
			Bucket:        os.Getenv("CHOREQUEST_S3_BUCKET"),
			Region:        getenv("CHOREQUEST_S3_REGION", "us-east-1"),
			AccessKey:     os.Getenv("CHOREQUEST_S3_ACCESS_KEY"),
			SecretKey:     os.Getenv("CHOREQUEST_S3_SECRET_KEY"),
			PublicBaseURL: strings.TrimRight(os.Getenv("CHOREQUEST_S3_PUBLIC_URL"), "/"),
		},
		Firebase: FirebaseConfig{
			CredentialsJSON: os.Getenv("CHOREQUEST_FIREBASE_CREDENTIALS"),
			ProjectID:       os.Getenv("CHOREQUEST_FIREBASE_PROJECT_ID"),
		},
	}
	cfg.BaseURL = getenv("CHOREQUEST_BASE_URL", "http://localhost:"+cfg.Port)

	tz := getenv("CHOREQUEST_TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Config{}, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	cfg.Timezone = loc

	cfg.Policy = DefaultPolicy()
	if cfg.PolicyFile != "" {
		p, err := LoadPolicy(cfg.PolicyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Policy = p
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("CHOREQUEST_JWT_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
