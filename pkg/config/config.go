package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	FeatureFlags  FeatureFlagsConfig
	Eventing      EventingConfig
	Storage       StorageConfig
	ImageKit      ImageKitConfig
	Cloudinary    CloudinaryConfig
	GCP           GCPConfig
	GCS           GCSConfig
	Firebase      FirebaseConfig
	MercadoPago   MercadoPagoConfig
	Payments      PaymentsConfig
	PubSub        PubSubConfig
	BigQuery      BigQueryConfig
	Outbox        OutboxConfig
	Cron          CronConfig
	AuthRateLimit AuthRateLimitConfig
	CORS          CORSConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"GALLOTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"GALLOTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"GALLOTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"GALLOTRACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"GALLOTRACK_DB_DSN"`

	LegacyHost     string `envconfig:"GALLOTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"GALLOTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GALLOTRACK_DB_USER"`
	LegacyPassword string `envconfig:"GALLOTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"GALLOTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"GALLOTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GALLOTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GALLOTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GALLOTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GALLOTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"GALLOTRACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GALLOTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"GALLOTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"GALLOTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GALLOTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GALLOTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GALLOTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GALLOTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GALLOTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"GALLOTRACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"GALLOTRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"GALLOTRACK_JWT_EXPIRATION_MINUTES" required:"true"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"GALLOTRACK_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"GALLOTRACK_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"GALLOTRACK_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"GALLOTRACK_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"GALLOTRACK_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"GALLOTRACK_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"GALLOTRACK_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	WebhookIdempotencyTTL  time.Duration `envconfig:"GALLOTRACK_EVENTING_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
	ConsumerIdempotencyTTL time.Duration `envconfig:"GALLOTRACK_EVENTING_CONSUMER_IDEMPOTENCY_TTL" default:"720h"`
}

// StorageConfig selects the media provider. Provider names match the
// adapter registry keys (imagekit, cloudinary, gcs).
type StorageConfig struct {
	Provider       string `envconfig:"GALLOTRACK_STORAGE_PROVIDER" default:"imagekit"`
	RootFolder     string `envconfig:"GALLOTRACK_STORAGE_ROOT_FOLDER" default:"gallotrack"`
	MaxImageMB     int    `envconfig:"GALLOTRACK_STORAGE_MAX_IMAGE_MB" default:"10"`
	MaxVideoMB     int    `envconfig:"GALLOTRACK_STORAGE_MAX_VIDEO_MB" default:"200"`
	DefaultQuality int    `envconfig:"GALLOTRACK_STORAGE_DEFAULT_QUALITY" default:"80"`
}

type ImageKitConfig struct {
	PublicKey   string `envconfig:"GALLOTRACK_IMAGEKIT_PUBLIC_KEY"`
	PrivateKey  string `envconfig:"GALLOTRACK_IMAGEKIT_PRIVATE_KEY"`
	URLEndpoint string `envconfig:"GALLOTRACK_IMAGEKIT_URL_ENDPOINT"`
}

// Complete reports whether every credential needed by the adapter is set.
func (c ImageKitConfig) Complete() bool {
	return strings.TrimSpace(c.PrivateKey) != "" && strings.TrimSpace(c.URLEndpoint) != ""
}

type CloudinaryConfig struct {
	CloudName string `envconfig:"GALLOTRACK_CLOUDINARY_CLOUD_NAME"`
	APIKey    string `envconfig:"GALLOTRACK_CLOUDINARY_API_KEY"`
	APISecret string `envconfig:"GALLOTRACK_CLOUDINARY_API_SECRET"`
}

func (c CloudinaryConfig) Complete() bool {
	return strings.TrimSpace(c.CloudName) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.APISecret) != ""
}

type GCPConfig struct {
	ProjectID              string `envconfig:"GALLOTRACK_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"GALLOTRACK_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"GALLOTRACK_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"GALLOTRACK_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"GALLOTRACK_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
}

type FirebaseConfig struct {
	CredentialsJSON string `envconfig:"GALLOTRACK_FIREBASE_CREDENTIALS_JSON"`
	CredentialsFile string `envconfig:"GALLOTRACK_FIREBASE_CREDENTIALS_FILE"`
}

type MercadoPagoConfig struct {
	AccessToken   string `envconfig:"GALLOTRACK_MERCADOPAGO_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"GALLOTRACK_MERCADOPAGO_WEBHOOK_SECRET"`
}

// PaymentsConfig holds the manual-transfer settings shown to users when
// they submit an "I paid" request.
type PaymentsConfig struct {
	QRMerchantName string `envconfig:"GALLOTRACK_PAYMENTS_QR_MERCHANT_NAME" default:"GalloTrack"`
	QRAccount      string `envconfig:"GALLOTRACK_PAYMENTS_QR_ACCOUNT"`
	Currency       string `envconfig:"GALLOTRACK_PAYMENTS_CURRENCY" default:"USD"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"GALLOTRACK_PUBSUB_NOTIFICATION_TOPIC" default:"gt-notification-events"`
	NotificationSubscription string `envconfig:"GALLOTRACK_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"gt-notification-worker"`
	AnalyticsSubscription    string `envconfig:"GALLOTRACK_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"gt-analytics-worker"`
}

// BigQueryConfig names the dataset and table the analytics worker streams
// billing facts into.
type BigQueryConfig struct {
	Dataset            string `envconfig:"GALLOTRACK_BIGQUERY_DATASET" default:"gallotrack"`
	BillingEventsTable string `envconfig:"GALLOTRACK_BIGQUERY_BILLING_EVENTS_TABLE" default:"billing_events"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"GALLOTRACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"GALLOTRACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"GALLOTRACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"GALLOTRACK_OUTBOX_RETENTION" default:"720h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"GALLOTRACK_CRON_INTERVAL" default:"1h"`
	RetentionEvery time.Duration `envconfig:"GALLOTRACK_CRON_RETENTION_EVERY" default:"24h"`
	LockKey        string        `envconfig:"GALLOTRACK_CRON_LOCK_KEY" default:"gt:cron:lock"`
	LockTTL        time.Duration `envconfig:"GALLOTRACK_CRON_LOCK_TTL" default:"55m"`
	MetricsAddr    string        `envconfig:"GALLOTRACK_CRON_METRICS_ADDR" default:":9102"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"GALLOTRACK_AUTH_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit       int           `envconfig:"GALLOTRACK_AUTH_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"GALLOTRACK_AUTH_LOGIN_EMAIL_LIMIT" default:"5"`
	RegisterWindow     time.Duration `envconfig:"GALLOTRACK_AUTH_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"GALLOTRACK_AUTH_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"GALLOTRACK_AUTH_REGISTER_EMAIL_LIMIT" default:"3"`
	VerifyWindow       time.Duration `envconfig:"GALLOTRACK_AUTH_VERIFY_WINDOW" default:"15m"`
	VerifyEmailLimit   int           `envconfig:"GALLOTRACK_AUTH_VERIFY_EMAIL_LIMIT" default:"5"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"GALLOTRACK_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
