package config

const (
	EnvPrefix = "CINENEXT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "CINENEXT_DB_DSN"
	EnvDBHost = "CINENEXT_DB_HOST"
	EnvDBUser = "CINENEXT_DB_USER"
	EnvDBName = "CINENEXT_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
