package config

const (
	EnvPrefix = "CLEARPATH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "CLEARPATH_APP_ENV"
	EnvPort     = "CLEARPATH_APP_PORT"
	EnvDBDSN    = "CLEARPATH_DB_DSN"
	EnvDBHost   = "CLEARPATH_DB_HOST"
	EnvDBUser   = "CLEARPATH_DB_USER"
	EnvDBName   = "CLEARPATH_DB_NAME"
	EnvRedisURL = "CLEARPATH_REDIS_URL"

	EnvGCPProjectID    = "CLEARPATH_GCP_PROJECT_ID"
	EnvPubSubAuditTopic = "CLEARPATH_PUBSUB_AUDIT_TOPIC"
	EnvPubSubAuditSub   = "CLEARPATH_PUBSUB_AUDIT_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
