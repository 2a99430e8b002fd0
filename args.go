package main

import (
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"toybid/engine"
)

func ParseArgs() Args {
	// instance config
	pflag.String("id", "toybid-0", "")
	pflag.String("metrics-addr", "0.0.0.0:9090", "")
	pflag.Duration("sweep-interval", time.Minute, "")

	// db config
	pflag.String("db-user", "", "")
	pflag.String("db-password", "", "")
	pflag.String("db-host", "", "")
	pflag.Int("db-port", 5432, "")
	pflag.String("db-database", "", "")
	pflag.String("db-schema", "", "")

	// redis config
	pflag.String("redis-addr", "", "")
	pflag.String("redis-password", "", "")
	pflag.Int("redis-db", 15, "")
	pflag.String("redis-key-prefix", "toybid:", "")
	pflag.String("redis-notification-stream", "toybid-notification-stream", "")
	pflag.String("redis-consumer-group", "toybid-notifier", "")

	// engine config
	pflag.Duration("payment-window", 5*time.Minute, "")
	pflag.Duration("bid-cooldown", 15*time.Second, "")
	pflag.Bool("allow-self-outbid", false, "")
	pflag.Duration("default-duration", 5*time.Minute, "")
	pflag.Int64("default-min-increment", 10, "")
	pflag.Int("max-commit-retries", 3, "")

	// bind pflag to viper
	pflag.Parse()
	viper.BindPFlags(pflag.CommandLine)
	viper.AutomaticEnv()
	viper.SetEnvPrefix("TOYBID")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// initial arguments
	return Args{
		ID:            viper.GetString("id"),
		MetricsAddr:   viper.GetString("metrics-addr"),
		SweepInterval: viper.GetDuration("sweep-interval"),
		DB: DBConfig{
			User:     viper.GetString("db-user"),
			Password: viper.GetString("db-password"),
			Host:     viper.GetString("db-host"),
			Port:     viper.GetInt("db-port"),
			Database: viper.GetString("db-database"),
			Schema:   viper.GetString("db-schema"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis-addr"),
			Password: viper.GetString("redis-password"),
			DB:       viper.GetInt("redis-db"),
		},
		Engine: engine.Config{
			PaymentWindow:       viper.GetDuration("payment-window"),
			BidCooldown:         viper.GetDuration("bid-cooldown"),
			AllowSelfOutbid:     viper.GetBool("allow-self-outbid"),
			DefaultDuration:     viper.GetDuration("default-duration"),
			DefaultMinIncrement: viper.GetInt64("default-min-increment"),
			MaxCommitRetries:    viper.GetInt("max-commit-retries"),
			Redis: engine.RedisConfig{
				KeyPrefix:          viper.GetString("redis-key-prefix"),
				NotificationStream: viper.GetString("redis-notification-stream"),
				ConsumerGroup:      viper.GetString("redis-consumer-group"),
			},
		},
	}
}

type Args struct {
	ID            string
	MetricsAddr   string
	SweepInterval time.Duration
	DB            DBConfig
	Redis         RedisConfig
	Engine        engine.Config
}

type DBConfig struct {
	User     string
	Password string
	Host     string
	Port     int
	Database string
	Schema   string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (args Args) Validate() bool {
	return args.ID != "" && args.DB.User != "" && args.DB.Host != "" && args.DB.Database != "" && args.Redis.Addr != "" && args.SweepInterval > 0
}
