package http

type Config struct {
	Port      uint   `mapstructure:"port"`
	OpsAPIKey string `mapstructure:"ops_api_key"`
}
