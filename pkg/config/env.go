package config

const EnvPrefix = "MIUVUU"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
)

const (
	EnvAppEnv = "MIUVUU_APP_ENV"
	EnvPort   = "MIUVUU_APP_PORT"

	EnvDBDSN  = "MIUVUU_DB_DSN"
	EnvDBHost = "MIUVUU_DB_HOST"
	EnvDBUser = "MIUVUU_DB_USER"
	EnvDBName = "MIUVUU_DB_NAME"

	EnvStorageRoot            = "MIUVUU_STORAGE_ROOT"
	EnvStorageUploadsSegment  = "MIUVUU_STORAGE_UPLOADS_SEGMENT"
	EnvStorageProductsSegment = "MIUVUU_STORAGE_PRODUCTS_SEGMENT"

	EnvUseSQLite = "MIUVUU_USE_SQLITE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
