// Package config loads service configuration from the environment.
package config

import (
	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

type Config struct {
	Service *svcConfig
	Extract *extractConfig
}

type svcConfig struct {
	Address        string  `envconfig:"YT_AUDIO_SERVER_ADDRESS" default:":8080"`
	LogLevel       string  `envconfig:"YT_AUDIO_SERVER_LOG_LEVEL" default:"info"`
	RateLimitRPS   float64 `envconfig:"YT_AUDIO_SERVER_RATE_LIMIT_RPS" default:"10"`
	RateLimitBurst int     `envconfig:"YT_AUDIO_SERVER_RATE_LIMIT_BURST" default:"20"`
}

type extractConfig struct {
	Binary      string `envconfig:"YT_AUDIO_SERVER_TOOL_BINARY" default:"yt-dlp"`
	DownloadDir string `envconfig:"YT_AUDIO_SERVER_DOWNLOAD_DIR" default:"downloads"`
	MaxParallel int64  `envconfig:"YT_AUDIO_SERVER_MAX_PARALLEL" default:"3"`
}

func New() (*Config, error) {
	if singleConfig == nil {
		singleConfig = new(Config)
		if err := envconfig.Process("", singleConfig); err != nil {
			return nil, err
		}
	}
	return singleConfig, nil
}
