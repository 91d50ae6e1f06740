package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Log configures the process logger.
type Log struct {
	Level         string
	Dir           string // daily JSONL files are written here when set
	RetentionDays int
}

// RedisConfig configures the shared Redis connection.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// MinIO configures the object store that hands out write locations.
type MinIO struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
	// Region pins the bucket region so presigning needs no lookup round trip.
	Region string
}

// Kafka configures the optional upload-completed event forwarder.
type Kafka struct {
	Brokers []string
	Topic   string
}

// KeySpec is one entry of the permit signing keyring.
type KeySpec struct {
	ID        string
	Secret    string
	RetiresAt *time.Time
}

// Agent captures configuration for the local capture agent.
type Agent struct {
	SubjectID          string
	DataDir            string
	AuthorityURL       string
	RemoteURL          string
	RemoteToken        string
	RemoteDSN          string // reads the remote snapshot from Postgres instead of HTTP
	PollInterval       time.Duration
	SettleDelay        time.Duration
	SyncInterval       time.Duration
	QuotaCheckInterval time.Duration
	ProbeAddr          string
	ProbeInterval      time.Duration
	WatchDir           string
	DeleteAfterUpload  bool
	IntentTTL          time.Duration
	TraceExporter      string // none or stdout
	Keys               []KeySpec
	Log                Log
	MinIO              MinIO
	Kafka              Kafka
}

// Authority captures configuration for the permit issuing service.
type Authority struct {
	Addr          string
	TiersFile     string
	Keys          []KeySpec
	LedgerBackend string // memory, redis or postgres
	PostgresDSN   string
	IntentTTL     time.Duration
	Redis         RedisConfig
	Log           Log
}

// AgentFromEnv builds the agent configuration so main stays lean.
func AgentFromEnv() (Agent, error) {
	keys, err := ParseKeys(os.Getenv("PERMIT_KEYS"))
	if err != nil {
		return Agent{}, err
	}
	dataDir := getenv("YORU_DATA_DIR", os.TempDir()+"/yorutsuke")
	return Agent{
		SubjectID:          os.Getenv("YORU_SUBJECT_ID"),
		DataDir:            dataDir,
		AuthorityURL:       getenv("YORU_AUTHORITY_URL", "http://127.0.0.1:8081"),
		RemoteURL:          getenv("YORU_REMOTE_URL", "http://127.0.0.1:8082"),
		RemoteToken:        os.Getenv("YORU_REMOTE_TOKEN"),
		RemoteDSN:          os.Getenv("YORU_REMOTE_DSN"),
		PollInterval:       getenvDuration("YORU_POLL_INTERVAL", time.Second),
		SettleDelay:        getenvDuration("YORU_SETTLE_DELAY", 10*time.Second),
		SyncInterval:       getenvDuration("YORU_SYNC_INTERVAL", 5*time.Minute),
		QuotaCheckInterval: getenvDuration("YORU_QUOTA_CHECK_INTERVAL", 30*time.Second),
		ProbeAddr:          getenv("YORU_PROBE_ADDR", "1.1.1.1:443"),
		ProbeInterval:      getenvDuration("YORU_PROBE_INTERVAL", 5*time.Second),
		WatchDir:           os.Getenv("YORU_WATCH_DIR"),
		DeleteAfterUpload:  getenvBool("YORU_DELETE_AFTER_UPLOAD", false),
		IntentTTL:          getenvDuration("YORU_INTENT_TTL", 24*time.Hour),
		TraceExporter:      getenv("YORU_TRACE_EXPORTER", "none"),
		Keys:               keys,
		Log:                logFromEnv(dataDir + "/logs"),
		MinIO: MinIO{
			Endpoint:  os.Getenv("YORU_MINIO_ENDPOINT"),
			AccessKey: os.Getenv("YORU_MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("YORU_MINIO_SECRET_KEY"),
			Bucket:    getenv("YORU_MINIO_BUCKET", "yorutsuke-receipts"),
			UseSSL:    getenvBool("YORU_MINIO_USE_SSL", false),
			URLExpiry: getenvDuration("YORU_MINIO_URL_EXPIRY", 15*time.Minute),
			Region:    getenv("YORU_MINIO_REGION", "us-east-1"),
		},
		Kafka: Kafka{
			Brokers: splitList(os.Getenv("YORU_KAFKA_BROKERS")),
			Topic:   getenv("YORU_KAFKA_TOPIC", "yorutsuke.upload.completed"),
		},
	}, nil
}

// AuthorityFromEnv builds the authority configuration.
func AuthorityFromEnv() (Authority, error) {
	keys, err := ParseKeys(os.Getenv("PERMIT_KEYS"))
	if err != nil {
		return Authority{}, err
	}
	return Authority{
		Addr:          getenv("AUTHORITY_ADDR", ":8081"),
		TiersFile:     os.Getenv("AUTHORITY_TIERS_FILE"),
		Keys:          keys,
		LedgerBackend: getenv("AUTHORITY_LEDGER", "memory"),
		PostgresDSN:   os.Getenv("DATABASE_URL"),
		IntentTTL:     getenvDuration("AUTHORITY_INTENT_TTL", 24*time.Hour),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getenvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getenvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getenvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getenvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getenvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Log: logFromEnv(os.Getenv("LOG_DIR")),
	}, nil
}

// ParseKeys parses "id=secret[@RFC3339],id2=secret2" into key specs. The
// first entry is the active signer; later entries only verify.
func ParseKeys(raw string) ([]KeySpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var specs []KeySpec
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		keyID, rest, ok := strings.Cut(entry, "=")
		if !ok || keyID == "" || rest == "" {
			return nil, fmt.Errorf("malformed permit key entry %q", keyID)
		}
		spec := KeySpec{ID: keyID, Secret: rest}
		if secret, retires, hasRetire := strings.Cut(rest, "@"); hasRetire {
			at, err := time.Parse(time.RFC3339, retires)
			if err != nil {
				return nil, fmt.Errorf("permit key %q: invalid retirement time: %w", keyID, err)
			}
			spec.Secret = secret
			spec.RetiresAt = &at
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func logFromEnv(defaultDir string) Log {
	return Log{
		Level:         getenv("LOG_LEVEL", "info"),
		Dir:           getenv("LOG_DIR", defaultDir),
		RetentionDays: getenvInt("LOG_RETENTION_DAYS", 7),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
