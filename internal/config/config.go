package config

import "time"

type Config interface {
	EnvConfig
	EloquaConfig
	QondorConfig
	StoreConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetFriendlyName() string
	GetServerName() string
	GetEnv() string
}

// EloquaConfig supplies the AppCloud client credentials and the Eloqua
// login endpoints used during the OAuth2 authorization-code flow.
type EloquaConfig interface {
	GetClientID() string
	GetClientSecret() string
	GetAuthorizeEndpoint() string
	GetTokenEndpoint() string
	GetIdentityEndpoint() string
}

type QondorConfig interface {
	GetQondorEndpoint() string
	GetQondorKey() string
}

type StoreConfig interface {
	GetRedisAddr() string
	GetSessionTTL() time.Duration
	GetInstallSessionTTL() time.Duration
	GetReplayTTL() time.Duration
	GetExecutionTTL() time.Duration
}

type mainConfig struct {
	EnvVars
	Eloqua
	Qondor
	Store
}

func New() Config {
	return mainConfig{}
}
