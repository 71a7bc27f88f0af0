package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Storage backends for the election marker and the result log.
const (
	BackendFile     = "file"
	BackendEtcd     = "etcd"
	BackendRedis    = "redis"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

type Config struct {
	DataDir         string
	MarkerName      string
	ResultsName     string
	ElectionBackend string
	ResultsBackend  string
	WorkerID        string

	Workload        string // pi or command
	WorkloadCommand string
	ParamMin        int
	ParamMax        int
	WorkloadTimeout time.Duration
	LockTimeout     time.Duration
	StorageTimeout  time.Duration

	EtcdEndpoints []string
	EtcdPrefix    string

	RedisHost   string
	RedisPort   string
	RedisPrefix string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	S3Bucket          string
	S3Prefix          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	LogLevel       string
	LogEncoding    string
	TracingEnabled bool
	OTLPEndpoint   string
	PushgatewayURL string
}

func LoadConfig() *Config {
	return &Config{
		DataDir:         getEnv("DATA_DIR", "/data"),
		MarkerName:      getEnv("MARKER_NAME", "elector.txt"),
		ResultsName:     getEnv("RESULTS_NAME", "output.csv"),
		ElectionBackend: getEnv("ELECTION_BACKEND", BackendFile),
		ResultsBackend:  getEnv("RESULTS_BACKEND", BackendFile),
		WorkerID:        getEnv("WORKER_ID", ""),

		Workload:        getEnv("WORKLOAD", "pi"),
		WorkloadCommand: getEnv("WORKLOAD_COMMAND", ""),
		ParamMin:        getEnvAsInt("PARAM_MIN", 1),
		ParamMax:        getEnvAsInt("PARAM_MAX", 10_000_000),
		WorkloadTimeout: getEnvAsDuration("WORKLOAD_TIMEOUT", 0),
		LockTimeout:     getEnvAsDuration("LOCK_TIMEOUT", 10*time.Second),
		StorageTimeout:  getEnvAsDuration("STORAGE_TIMEOUT", 30*time.Second),

		EtcdEndpoints: getEnvAsList("ETCD_ENDPOINTS", "localhost:2379"),
		EtcdPrefix:    getEnv("ETCD_PREFIX", "/coalmine"),

		RedisHost:   getEnv("REDIS_HOST", "localhost"),
		RedisPort:   getEnv("REDIS_PORT", "6379"),
		RedisPrefix: getEnv("REDIS_PREFIX", "coalmine"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "coalmine"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "coalmine"),

		S3Bucket:          getEnv("S3_BUCKET", "coalmine"),
		S3Prefix:          getEnv("S3_PREFIX", "coalmine"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),

		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogEncoding:    getEnv("LOG_ENCODING", "console"),
		TracingEnabled: getEnvAsBool("TRACING_ENABLED", false),
		OTLPEndpoint:   getEnv("OTLP_ENDPOINT", "localhost:4318"),
		PushgatewayURL: getEnv("PUSHGATEWAY_URL", ""),
	}
}

// MarkerPath is the election marker location for the file backend.
func (c *Config) MarkerPath() string {
	return filepath.Join(c.DataDir, c.MarkerName)
}

// ResultsPath is the result log location for the file backend.
func (c *Config) ResultsPath() string {
	return filepath.Join(c.DataDir, c.ResultsName)
}

// UsesDataDir reports whether any component keeps its state under DataDir.
func (c *Config) UsesDataDir() bool {
	return c.ElectionBackend == BackendFile || c.ResultsBackend == BackendFile
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsList(key, fallback string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, fallback), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
