package config

type Config interface {
	EnvConfig
	AuthConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetDatabaseDSN() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetJWTSecret() string
	GetIssuer() string
	GetAudience() string
}

type mainConfig struct {
	EnvVars
	Auth
}

func New() Config {
	return mainConfig{}
}
