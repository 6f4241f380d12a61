package crawler

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config captures every knob that influences a crawl run. All values
// originate from Viper so the crawl can be configured via file, env vars, or
// CLI flags.
type Config struct {
	BaseURL     string
	UserAgent   string
	Delay       time.Duration
	Workers     int
	MaxPages    int
	MaxCards    int
	CommitEvery int
	Timeout     time.Duration
	ImageDir    string
}

// LoadConfig constructs a Config by reading from Viper.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		BaseURL:     v.GetString("crawl.base_url"),
		UserAgent:   v.GetString("crawl.user_agent"),
		Delay:       v.GetDuration("crawl.delay"),
		Workers:     v.GetInt("crawl.workers"),
		MaxPages:    v.GetInt("crawl.max_pages"),
		MaxCards:    v.GetInt("crawl.max_cards"),
		CommitEvery: v.GetInt("crawl.commit_every"),
		Timeout:     v.GetDuration("crawl.timeout"),
		ImageDir:    v.GetString("crawl.image_dir"),
	}
	return cfg, cfg.Validate()
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("crawl.base_url must be set")
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("crawl.base_url is not a valid URL: %w", err)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("crawl.user_agent must be set")
	}
	if c.Delay < 0 {
		return fmt.Errorf("crawl.delay must be >= 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.MaxCards < 0 {
		return fmt.Errorf("crawl.max_cards must be >= 0")
	}
	if c.CommitEvery <= 0 {
		return fmt.Errorf("crawl.commit_every must be > 0")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("crawl.timeout must be > 0")
	}
	return nil
}
