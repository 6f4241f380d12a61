// Package config initializes the application's configuration. It uses Viper
// to read settings from a config file, environment variables, and CLI flags,
// providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// InitConfig initializes the application's configuration using Viper. It sets
// defaults, config search paths, and env-var binding. Call once at startup.
func InitConfig(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}

	viper.SetConfigName("config")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/hocg-catalog/")
	viper.AddConfigPath("$HOME/.hocg-catalog")

	// Crawl defaults. One worker with a polite delay is the baseline; the
	// site is small enough that a full crawl still finishes quickly.
	viper.SetDefault("crawl.base_url", "https://hololive-official-cardgame.com")
	viper.SetDefault("crawl.user_agent", "hocg-catalog/1.0 (+https://github.com/SmallTyrant/hocg-catalog)")
	viper.SetDefault("crawl.delay", "600ms")
	viper.SetDefault("crawl.workers", 1)
	viper.SetDefault("crawl.max_pages", 999)
	viper.SetDefault("crawl.max_cards", 0)
	viper.SetDefault("crawl.commit_every", 50)
	viper.SetDefault("crawl.timeout", "30s")
	viper.SetDefault("crawl.image_dir", "")

	viper.SetDefault("db.path", "hocg.db")

	viper.SetDefault("http.addr", ":8080")

	viper.SetEnvPrefix("HOCG") // e.g. HOCG_CRAWL_WORKERS=4
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Debug("config file not found; using defaults and environment variables")
		} else {
			logger.Error("error reading config file", zap.Error(err))
		}
	} else {
		logger.Info("using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
