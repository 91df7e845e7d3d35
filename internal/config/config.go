// Package config loads runtime configuration for the tenantcore binary from
// an optional config.yaml plus TENANTCORE_* environment overrides.
package config

import (
	"strings"

	"github.com/spf13/viper"

	"tenantcore/internal/blob"
)

// Config is the runtime configuration of the tenantcore process.
type Config struct {
	// ListenAddr is the operational HTTP listen address.
	ListenAddr string
	// LogLevel selects the zap level (debug|info|warn|error).
	LogLevel string
	Blob     blob.Config
}

// Default returns the configuration used when nothing is set: a filesystem
// blob store under ./blobdata serving on :8080.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		LogLevel:   "info",
		Blob: blob.Config{
			Driver: blob.DriverFilesystem,
			FSRoot: "./blobdata",
		},
	}
}

// Load reads config.yaml from configPath (optional) and applies environment
// overrides such as TENANTCORE_BLOB_DRIVER and TENANTCORE_LISTEN_ADDR.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix("TENANTCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("listen.addr")
	v.BindEnv("log.level")
	v.BindEnv("blob.driver")
	v.BindEnv("blob.fs.root")
	v.BindEnv("blob.sqlite.path")
	v.BindEnv("blob.postgres.dsn")
	v.BindEnv("blob.s3.bucket")
	v.BindEnv("blob.s3.region")
	v.BindEnv("blob.s3.endpoint")
	v.BindEnv("blob.s3.path.style")

	// A missing config file is fine; defaults plus env suffice.
	_ = v.ReadInConfig()

	if v.IsSet("listen.addr") {
		cfg.ListenAddr = v.GetString("listen.addr")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("blob.driver") {
		driver, err := blob.ParseDriver(v.GetString("blob.driver"))
		if err != nil {
			return Config{}, err
		}
		cfg.Blob.Driver = driver
	}
	if v.IsSet("blob.fs.root") {
		cfg.Blob.FSRoot = v.GetString("blob.fs.root")
	}
	if v.IsSet("blob.sqlite.path") {
		cfg.Blob.SQLitePath = v.GetString("blob.sqlite.path")
	}
	if v.IsSet("blob.postgres.dsn") {
		cfg.Blob.PostgresDSN = v.GetString("blob.postgres.dsn")
	}
	if v.IsSet("blob.s3.bucket") {
		cfg.Blob.S3Bucket = v.GetString("blob.s3.bucket")
	}
	if v.IsSet("blob.s3.region") {
		cfg.Blob.S3Region = v.GetString("blob.s3.region")
	}
	if v.IsSet("blob.s3.endpoint") {
		cfg.Blob.S3Endpoint = v.GetString("blob.s3.endpoint")
	}
	if v.IsSet("blob.s3.path.style") {
		cfg.Blob.S3PathStyle = v.GetBool("blob.s3.path.style")
	}
	return cfg, nil
}
