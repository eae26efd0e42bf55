package objectstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/storyforge-labs/storyforge-go/internal/platform/env"
)

type Config struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Region      string
	UseSSL      bool
	BucketMedia string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("STORYFORGE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:    env.String("STORYFORGE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:   env.String("STORYFORGE_MINIO_ACCESS_KEY", "storyforge"),
		SecretKey:   env.String("STORYFORGE_MINIO_SECRET_KEY", "storyforgeminio"),
		Region:      env.String("STORYFORGE_MINIO_REGION", "us-east-1"),
		UseSSL:      useSSL,
		BucketMedia: env.String("STORYFORGE_MINIO_BUCKET_MEDIA", "media"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("endpoint is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("secret key is required")
	}
	if strings.TrimSpace(c.Region) == "" {
		return errors.New("region is required")
	}
	if strings.TrimSpace(c.BucketMedia) == "" {
		return errors.New("media bucket is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("endpoint must not include scheme: %q", c.Endpoint)
	}
	return nil
}
