package config

import (
	"github.com/dmitrijs2005/gophchat/internal/envx"
	"github.com/dmitrijs2005/gophchat/internal/flagx"
)

// Environment variables read by parseEnv.
const (
	EnvGRPCAddr        = "GOPHCHAT_GRPC_ADDR"
	EnvHTTPAddr        = "GOPHCHAT_HTTP_ADDR"
	EnvDatabaseDSN     = "GOPHCHAT_DATABASE_DSN"
	EnvSecretKey       = "GOPHCHAT_SECRET_KEY"
	EnvAccessTokenTTL  = "GOPHCHAT_ACCESS_TOKEN_TTL"
	EnvRefreshTokenTTL = "GOPHCHAT_REFRESH_TOKEN_TTL"
	EnvS3User          = "GOPHCHAT_S3_USER"
	EnvS3Password      = "GOPHCHAT_S3_PASSWORD"
	EnvS3Bucket        = "GOPHCHAT_S3_BUCKET"
	EnvS3Region        = "GOPHCHAT_S3_REGION"
	EnvS3Endpoint      = "GOPHCHAT_S3_ENDPOINT"
	EnvAllowedOrigin   = "GOPHCHAT_ALLOWED_ORIGIN"
	EnvSessionBuffer   = "GOPHCHAT_SESSION_BUFFER"
)

// parseEnv loads the dotenv file given with -env (or ./.env when present)
// and overlays any GOPHCHAT_* variables. Malformed values panic.
func parseEnv(config *Config) {
	envFile := flagx.EnvFileFlags()
	if envFile == "" {
		envFile = ".env"
	}
	if err := envx.Load(envFile); err != nil {
		panic(err)
	}

	envx.String(&config.EndpointAddrGRPC, EnvGRPCAddr)
	envx.String(&config.EndpointAddrHTTP, EnvHTTPAddr)
	envx.String(&config.DatabaseDSN, EnvDatabaseDSN)
	envx.String(&config.SecretKey, EnvSecretKey)
	envx.String(&config.S3RootUser, EnvS3User)
	envx.String(&config.S3RootPassword, EnvS3Password)
	envx.String(&config.S3Bucket, EnvS3Bucket)
	envx.String(&config.S3Region, EnvS3Region)
	envx.String(&config.S3BaseEndpoint, EnvS3Endpoint)
	envx.String(&config.AllowedOrigin, EnvAllowedOrigin)

	if err := envx.Duration(&config.AccessTokenValidityDuration, EnvAccessTokenTTL); err != nil {
		panic(err)
	}
	if err := envx.Duration(&config.RefreshTokenValidityDuration, EnvRefreshTokenTTL); err != nil {
		panic(err)
	}
	if err := envx.Int(&config.SessionBufferSize, EnvSessionBuffer); err != nil {
		panic(err)
	}
}
