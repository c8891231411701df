package config

const (
	EnvPrefix = "GALLOTRACK"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "GALLOTRACK_APP_ENV"
	EnvPort     = "GALLOTRACK_APP_PORT"
	EnvLogLevel = "GALLOTRACK_LOG_LEVEL"

	EnvDBDSN  = "GALLOTRACK_DB_DSN"
	EnvDBHost = "GALLOTRACK_DB_HOST"
	EnvDBUser = "GALLOTRACK_DB_USER"
	EnvDBName = "GALLOTRACK_DB_NAME"

	EnvRedisURL = "GALLOTRACK_REDIS_URL"

	EnvJWTSecret  = "GALLOTRACK_JWT_SECRET"
	EnvJWTIssuer  = "GALLOTRACK_JWT_ISSUER"
	EnvJWTExpMins = "GALLOTRACK_JWT_EXPIRATION_MINUTES"

	EnvStorageProvider   = "GALLOTRACK_STORAGE_PROVIDER"
	EnvImageKitPrivate   = "GALLOTRACK_IMAGEKIT_PRIVATE_KEY"
	EnvImageKitEndpoint  = "GALLOTRACK_IMAGEKIT_URL_ENDPOINT"
	EnvCloudinaryName    = "GALLOTRACK_CLOUDINARY_CLOUD_NAME"
	EnvCloudinaryKey     = "GALLOTRACK_CLOUDINARY_API_KEY"
	EnvCloudinarySecret  = "GALLOTRACK_CLOUDINARY_API_SECRET"
	EnvGCPProjectID      = "GALLOTRACK_GCP_PROJECT_ID"
	EnvGCSBucket         = "GALLOTRACK_GCS_BUCKET_NAME"
	EnvMercadoPagoSecret = "GALLOTRACK_MERCADOPAGO_WEBHOOK_SECRET"

	EnvPubSubNotificationTopic = "GALLOTRACK_PUBSUB_NOTIFICATION_TOPIC"
	EnvPubSubNotificationSub   = "GALLOTRACK_PUBSUB_NOTIFICATION_SUBSCRIPTION"
	EnvPubSubAnalyticsSub      = "GALLOTRACK_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvBigQueryDataset         = "GALLOTRACK_BIGQUERY_DATASET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
