// Package images downloads card images into a local directory keyed by card
// number. Downloads are best effort: the catalog record is complete without
// them.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const defaultTimeout = 30 * time.Second

// Cache stores one image file per card number under a base directory.
// Existing files are never re-downloaded.
type Cache struct {
	dir    string
	client *resty.Client
	logger *zap.Logger
}

// New prepares the cache directory and the HTTP client. The directory is
// created if missing.
func New(dir, userAgent string, logger *zap.Logger) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(2).
		SetHeader("User-Agent", userAgent)
	return &Cache{dir: dir, client: client, logger: logger}, nil
}

// Path returns the on-disk location for a card's image, whether or not it
// exists yet.
func (c *Cache) Path(cardNumber string) string {
	return filepath.Join(c.dir, safeName(cardNumber)+".png")
}

// Ensure downloads the image unless the file already exists. It returns the
// local path. The write goes through a temp file and rename so a partial
// download never masquerades as a cached image.
func (c *Cache) Ensure(ctx context.Context, cardNumber, imageURL string) (string, error) {
	if cardNumber == "" {
		return "", fmt.Errorf("ensure image: empty card number")
	}
	if imageURL == "" {
		return "", fmt.Errorf("ensure image %s: empty url", cardNumber)
	}
	dest := c.Path(cardNumber)
	if _, err := os.Stat(dest); err == nil {
		return dest, nil
	}

	resp, err := c.client.R().SetContext(ctx).Get(imageURL)
	if err != nil {
		return "", fmt.Errorf("download image %s: %w", cardNumber, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("download image %s: status %d", cardNumber, resp.StatusCode())
	}
	body := resp.Body()
	if len(body) == 0 {
		return "", fmt.Errorf("download image %s: empty body", cardNumber)
	}

	tmp, err := os.CreateTemp(c.dir, safeName(cardNumber)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp image file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write image %s: %w", cardNumber, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close image %s: %w", cardNumber, err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize image %s: %w", cardNumber, err)
	}
	c.logger.Debug("image cached",
		zap.String("card_number", cardNumber), zap.Int("bytes", len(body)))
	return dest, nil
}

// safeName strips path separators from the card number before it becomes a
// file name.
func safeName(cardNumber string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':':
			return '_'
		}
		return r
	}, cardNumber)
}
