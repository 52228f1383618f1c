package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	portEnvVar       = "PORT"
	appNameVar       = "APP_NAME"
	serverNameVar    = "SERVER_NAME"
	friendlyNameVar  = "CLOUD_APP_FRIENDLY_NAME"
	clientIDVar      = "CLOUD_APP_CLIENT_ID"
	clientSecretVar  = "CLOUD_APP_CLIENT_SECRET"
	authEndpointVar  = "ELOQUA_ENDPOINT_AUTH"
	tokenEndpointVar = "ELOQUA_ENDPOINT_TOKEN"
	idEndpointVar    = "ELOQUA_ENDPOINT_ID"
	qondorURLVar     = "QONDOR_ENDPOINT"
	qondorKeyVar     = "QONDOR_PRIMARY_KEY"
	redisAddrVar     = "REDIS_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "8080")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Qondor Cloud App")
}

func (EnvVars) GetFriendlyName() string {
	return GetEnv(friendlyNameVar, "Qondor Integration")
}

// GetServerName returns the external host name of the app, e.g.
// "my-app.isotammi.fi". Used to build the OAuth redirect URI.
func (EnvVars) GetServerName() string {
	return GetEnv(serverNameVar, "localhost:8080")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

type Eloqua struct{}

var _ EloquaConfig = Eloqua{}

func (Eloqua) GetClientID() string {
	return GetEnv(clientIDVar, "")
}

func (Eloqua) GetClientSecret() string {
	return GetEnv(clientSecretVar, "")
}

func (Eloqua) GetAuthorizeEndpoint() string {
	return GetEnv(authEndpointVar, "https://login.eloqua.com/auth/oauth2/authorize")
}

func (Eloqua) GetTokenEndpoint() string {
	return GetEnv(tokenEndpointVar, "https://login.eloqua.com/auth/oauth2/token")
}

func (Eloqua) GetIdentityEndpoint() string {
	return GetEnv(idEndpointVar, "https://login.eloqua.com/id")
}

type Qondor struct{}

var _ QondorConfig = Qondor{}

func (Qondor) GetQondorEndpoint() string {
	return GetEnv(qondorURLVar, "https://qondor.azure-api.net/Prod")
}

func (Qondor) GetQondorKey() string {
	return GetEnv(qondorKeyVar, "")
}

type Store struct{}

var _ StoreConfig = Store{}

func (Store) GetRedisAddr() string {
	return GetEnv(redisAddrVar, "localhost:6379")
}

func (Store) GetSessionTTL() time.Duration {
	return getEnvSeconds("SESSION_TTL_SECONDS", time.Hour)
}

// GetInstallSessionTTL bounds the window between the install webhook and
// the OAuth callback completing.
func (Store) GetInstallSessionTTL() time.Duration {
	return getEnvSeconds("INSTALL_SESSION_TTL_SECONDS", 5*time.Minute)
}

func (Store) GetReplayTTL() time.Duration {
	return getEnvSeconds("REPLAY_TTL_SECONDS", 5*time.Minute)
}

func (Store) GetExecutionTTL() time.Duration {
	return getEnvSeconds("EXECUTION_TTL_SECONDS", 24*time.Hour)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvSeconds(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
