// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"addr":             "server.addr",
	"base-path":        "server.base_path",
	"client-url":       "server.client_url",
	"cors-origins":     "server.cors_origins",
	"workers":          "server.embedded_workers",
	"cookie-name":      "session.cookie_name",
	"cookie-secure":    "session.cookie_secure",
	"session-max-age":  "session.max_age",
	"database-url":     "database.url",
	"redis-url":        "redis.url",
	"user-cache-ttl":   "redis.user_cache_ttl",
	"queues":           "queue.queues",
	"worker-name":      "queue.consumer",
	"avatar-bucket":    "avatar.bucket",
	"metrics-addr":     "observability.metrics_addr",
	"grpc-health-addr": "observability.grpc_health_addr",
	"log-format":       "log.format",
	"log-level":        "log.level",
}

// RegisterServeFlags adds the flags of the serve command.
func RegisterServeFlags(flags *pflag.FlagSet) {
	d := Defaults()
	registerRuntimeFlags(flags, d)
	flags.String("addr", d.Server.Addr, "HTTP API listen address")
	flags.String("base-path", d.Server.BasePath, "HTTP API base path")
	flags.String("client-url", d.Server.ClientURL, "public URL of the web client, used in emailed links")
	flags.StringSlice("cors-origins", d.Server.CORSOrigins, "allowed CORS origins (glob patterns)")
	flags.Bool("workers", d.Server.EmbeddedWorkers, "also run job workers in this process")
	flags.String("cookie-name", d.Session.CookieName, "session cookie name")
	flags.Bool("cookie-secure", d.Session.CookieSecure, "mark the session cookie Secure")
	flags.Duration("session-max-age", d.Session.MaxAge, "session cookie lifetime")
	flags.Duration("user-cache-ttl", d.Redis.UserCacheTTL, "user cache entry lifetime")
	flags.String("avatar-bucket", d.Avatar.Bucket, "S3 bucket for avatars")
}

// RegisterWorkerFlags adds the flags of the worker command.
func RegisterWorkerFlags(flags *pflag.FlagSet) {
	d := Defaults()
	registerRuntimeFlags(flags, d)
	flags.StringSlice("queues", d.Queue.Queues, "queues to consume (default: all)")
	flags.String("worker-name", d.Queue.Consumer, "consumer name within the worker group (default: hostname plus random suffix)")
}

// RegisterMigrateFlags adds the flags of the migrate commands.
func RegisterMigrateFlags(flags *pflag.FlagSet) {
	d := Defaults()
	flags.String("database-url", d.Database.URL, "PostgreSQL URL (prefer DATABASE_URL)")
	registerLogFlags(flags, d)
}

func registerRuntimeFlags(flags *pflag.FlagSet, d Config) {
	flags.String("database-url", d.Database.URL, "PostgreSQL URL (prefer DATABASE_URL)")
	flags.String("redis-url", d.Redis.URL, "Redis URL")
	flags.String("metrics-addr", d.Observability.MetricsAddr, "metrics and health HTTP address (empty = disabled)")
	flags.String("grpc-health-addr", d.Observability.GRPCHealthAddr, "gRPC health address (empty = disabled)")
	registerLogFlags(flags, d)
}

func registerLogFlags(flags *pflag.FlagSet, d Config) {
	flags.String("log-format", d.Log.Format, "log format (json or text)")
	flags.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// LoadOptions controls where Load reads from.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. When empty, DefaultConfigFile is
	// used if present.
	ConfigFile string
	// DotEnvFile defaults to ".env"; a missing file is ignored.
	DotEnvFile string
	// Environ replaces os.Environ, for tests.
	Environ []string
}

// Load builds the configuration from defaults, the config file, flags and
// the environment. flags may be nil.
func Load(flags *pflag.FlagSet, opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.ConfigFile == "" {
		opts.ConfigFile = DefaultConfigFile()
	}
	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", opts.ConfigFile).Wrap(err)
		}
	}

	if flags != nil {
		// Unchanged flags only fill keys the file left unset.
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_DECODE_FAILED").Wrap(err)
	}

	environment, err := environ(opts)
	if err != nil {
		return nil, err
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil {
		return nil, oops.Code("CONFIG_ENV_INVALID").Wrap(err)
	}

	return &cfg, nil
}

// environ merges the .env file under the process environment, so real
// environment variables always win.
func environ(opts LoadOptions) (map[string]string, error) {
	path := opts.DotEnvFile
	if path == "" {
		path = ".env"
	}
	merged, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_DOTENV_INVALID").With("path", path).Wrap(err)
		}
		merged = map[string]string{}
	}

	vars := opts.Environ
	if vars == nil {
		vars = os.Environ()
	}
	for _, kv := range vars {
		if key, value, ok := strings.Cut(kv, "="); ok {
			merged[key] = value
		}
	}
	return merged, nil
}
