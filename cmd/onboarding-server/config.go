package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/api/http"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/auth"
	"github.com/matross-gh/platform-engineering-copilot-sub003/internal/db"
)

type Config struct {
	Log    LogConfig
	Http   http.Config
	Db     db.Config
	Jwt    auth.JWTConfig
	Notify NotifyConfig
}

type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url"`
	SlackChannel    string `mapstructure:"slack_channel"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/onboarding-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("notify.slack_webhook_url", "SLACK_WEBHOOK_URL")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
