package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	BackendDeepFace = "deepface"
	BackendGRPC     = "grpc"
)

// Config is the process configuration, populated from the environment.
type Config struct {
	// Server
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"5000"`
	Environment     string        `envconfig:"ENV" default:"production"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	MaxUploadBytes  int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	MaxImagePixels  int64         `envconfig:"MAX_IMAGE_PIXELS" default:"25000000"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"15s"`
	CORSOrigins     []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	// Verifier
	Backend  string         `envconfig:"VERIFIER_BACKEND" default:"deepface"`
	DeepFace DeepFaceConfig `envconfig:"DEEPFACE"`
	GRPC     GRPCConfig     `envconfig:"VERIFIER_GRPC"`
}

// DeepFaceConfig configures the HTTP DeepFace backend.
type DeepFaceConfig struct {
	URL            string        `envconfig:"URL" default:"http://localhost:5005"`
	Timeout        time.Duration `envconfig:"TIMEOUT" default:"120s"`
	Model          string        `envconfig:"MODEL" default:"VGG-Face"`
	Detector       string        `envconfig:"DETECTOR" default:"opencv"`
	DistanceMetric string        `envconfig:"DISTANCE_METRIC" default:"cosine"`
}

// GRPCConfig configures the gRPC sidecar backend.
type GRPCConfig struct {
	Addr        string        `envconfig:"ADDR" default:"localhost:50051"`
	DialTimeout time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	CallTimeout time.Duration `envconfig:"CALL_TIMEOUT" default:"120s"`
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid PORT %d", c.Port)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes)
	}
	if c.MaxImagePixels < 0 {
		return fmt.Errorf("MAX_IMAGE_PIXELS must not be negative, got %d", c.MaxImagePixels)
	}
	switch strings.ToLower(c.Backend) {
	case BackendDeepFace:
		if c.DeepFace.URL == "" {
			return fmt.Errorf("DEEPFACE_URL is required for the %s backend", BackendDeepFace)
		}
	case BackendGRPC:
		if c.GRPC.Addr == "" {
			return fmt.Errorf("VERIFIER_GRPC_ADDR is required for the %s backend", BackendGRPC)
		}
	default:
		return fmt.Errorf("unknown VERIFIER_BACKEND %q", c.Backend)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
