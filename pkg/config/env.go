package config

const (
	EnvPrefix = "LUGGAGE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "LUGGAGE_APP_ENV"
	EnvPort     = "LUGGAGE_APP_PORT"
	EnvLogLvl   = "LUGGAGE_LOG_LEVEL"
	EnvDBDSN    = "LUGGAGE_DB_DSN"
	EnvDBHost   = "LUGGAGE_DB_HOST"
	EnvDBUser   = "LUGGAGE_DB_USER"
	EnvDBName   = "LUGGAGE_DB_NAME"
	EnvDBPass   = "LUGGAGE_DB_PASSWORD"
	EnvDBPort   = "LUGGAGE_DB_PORT"
	EnvDBSSL    = "LUGGAGE_DB_SSLMODE"
	EnvRedisURL = "LUGGAGE_REDIS_URL"

	EnvJWTSecret  = "LUGGAGE_JWT_SECRET"
	EnvJWTIssuer  = "LUGGAGE_JWT_ISSUER"
	EnvJWTExpMins = "LUGGAGE_JWT_EXPIRATION_MINUTES"

	EnvCheckInSecret  = "LUGGAGE_CHECKIN_JWT_SECRET"
	EnvCheckInTTL     = "LUGGAGE_CHECKIN_TOKEN_TTL"
	EnvCheckInBaseURL = "LUGGAGE_CHECKIN_BASE_URL"

	EnvBookingArchiveCutoffDays  = "LUGGAGE_BOOKING_ARCHIVE_CUTOFF_DAYS"
	EnvBookingCancelledRetention = "LUGGAGE_BOOKING_CANCELLED_RETENTION_DAYS"

	EnvGCPProjectID         = "LUGGAGE_GCP_PROJECT_ID"
	EnvPubSubBookingTopic   = "LUGGAGE_PUBSUB_BOOKING_TOPIC"
	EnvPubSubAnalyticsTopic = "LUGGAGE_PUBSUB_ANALYTICS_TOPIC"
	EnvPubSubAnalyticsSub   = "LUGGAGE_PUBSUB_ANALYTICS_SUBSCRIPTION"
	EnvStripeAPIKey         = "LUGGAGE_STRIPE_API_KEY"
	EnvStripeSecret         = "LUGGAGE_STRIPE_SECRET"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
