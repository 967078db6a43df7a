package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/officedj/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

func (v configVar[T]) bindEnv() {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

var (
	secret = configVar[string]{
		envKey:  "SERVER_SECRET",
		flagKey: "secret",
		usage:   "Secret used to sign and verify identity tokens",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 80,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:  "REDIS_PASSWORD",
		flagKey: "redis-password",
		usage:   "Redis password",
	}
	likesDBPath = configVar[string]{
		envKey:       "SERVER_LIKES_DB_PATH",
		flagKey:      "likes-db-path",
		defaultValue: "/var/lib/officedj/likes.db",
		usage:        "SQLite database file for song likes",
	}
	versionFile = configVar[string]{
		envKey:  "SERVER_VERSION_FILE",
		flagKey: "version-file",
		usage:   "File holding the latest client app version, watched for changes",
	}
	youtubeAPIKey = configVar[string]{
		envKey:  "YOUTUBE_API_KEY",
		flagKey: "youtube-api-key",
		usage:   "YouTube Data API key for duration lookups",
	}
	queueLimit = configVar[int]{
		envKey:       "SERVER_QUEUE_LIMIT",
		flagKey:      "queue-limit",
		defaultValue: 100,
		usage:        "Maximum number of entries in a room queue",
	}
	roomExp = configVar[time.Duration]{
		envKey:       "SERVER_ROOM_EXP",
		flagKey:      "room-exp",
		defaultValue: 14 * 24 * time.Hour,
		usage:        "Inactivity after which a room expires",
	}
	sessionTTL = configVar[time.Duration]{
		envKey:       "SERVER_SESSION_TTL",
		flagKey:      "session-ttl",
		defaultValue: 60 * time.Second,
		usage:        "Liveness timeout of a host session",
	}
	driftThreshold = configVar[time.Duration]{
		envKey:       "SERVER_DRIFT_THRESHOLD",
		flagKey:      "drift-threshold",
		defaultValue: 2 * time.Second,
		usage:        "Drift beyond which the host player is re-seeked",
	}
	driftInterval = configVar[time.Duration]{
		envKey:       "SERVER_DRIFT_INTERVAL",
		flagKey:      "drift-interval",
		defaultValue: 500 * time.Millisecond,
		usage:        "Drift check interval",
	}
	hostGracePeriod = configVar[time.Duration]{
		envKey:  "SERVER_HOST_GRACE_PERIOD",
		flagKey: "host-grace-period",
		usage:   "Wait before reporting a missing host to remotes",
	}
)

func loadAppConfig() *app.AppConfig {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.String(likesDBPath.flagKey, likesDBPath.defaultValue, likesDBPath.usage)
	pflag.String(versionFile.flagKey, versionFile.defaultValue, versionFile.usage)
	pflag.String(youtubeAPIKey.flagKey, youtubeAPIKey.defaultValue, youtubeAPIKey.usage)
	pflag.Int(queueLimit.flagKey, queueLimit.defaultValue, queueLimit.usage)
	pflag.Duration(roomExp.flagKey, roomExp.defaultValue, roomExp.usage)
	pflag.Duration(sessionTTL.flagKey, sessionTTL.defaultValue, sessionTTL.usage)
	pflag.Duration(driftThreshold.flagKey, driftThreshold.defaultValue, driftThreshold.usage)
	pflag.Duration(driftInterval.flagKey, driftInterval.defaultValue, driftInterval.usage)
	pflag.Duration(hostGracePeriod.flagKey, hostGracePeriod.defaultValue, hostGracePeriod.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	secret.bindEnv()
	port.bindEnv()
	host.bindEnv()
	logLevel.bindEnv()
	redisPort.bindEnv()
	redisHost.bindEnv()
	redisPassword.bindEnv()
	likesDBPath.bindEnv()
	versionFile.bindEnv()
	youtubeAPIKey.bindEnv()
	queueLimit.bindEnv()
	roomExp.bindEnv()
	sessionTTL.bindEnv()
	driftThreshold.bindEnv()
	driftInterval.bindEnv()
	hostGracePeriod.bindEnv()

	return &app.AppConfig{
		Secret:          viper.GetString(secret.flagKey),
		Host:            viper.GetString(host.flagKey),
		Port:            viper.GetInt(port.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
		RedisPort:       viper.GetInt(redisPort.flagKey),
		RedisHost:       viper.GetString(redisHost.flagKey),
		RedisPassword:   viper.GetString(redisPassword.flagKey),
		LikesDBPath:     viper.GetString(likesDBPath.flagKey),
		VersionFile:     viper.GetString(versionFile.flagKey),
		YouTubeAPIKey:   viper.GetString(youtubeAPIKey.flagKey),
		QueueLimit:      viper.GetInt(queueLimit.flagKey),
		RoomExp:         viper.GetDuration(roomExp.flagKey),
		SessionTTL:      viper.GetDuration(sessionTTL.flagKey),
		DriftThreshold:  viper.GetDuration(driftThreshold.flagKey),
		DriftInterval:   viper.GetDuration(driftInterval.flagKey),
		HostGracePeriod: viper.GetDuration(hostGracePeriod.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
