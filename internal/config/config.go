// Package config reads olpull settings from the environment and an optional
// .env file in the working directory.
package config

import (
	"fmt"
	"time"

	"olpull/internal/client"
	"olpull/internal/snapshot"
	"olpull/pkg/r2"

	"github.com/gnitoahc/go-dotenv"
)

const (
	defaultSnapshotDriver = "sqlite"
	defaultSnapshotSource = "file:olpull_snapshots.db?cache=shared"
)

// Config holds the settings that are not given on the command line.
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Snapshot  snapshot.Config
}

// Load reads envFile (if it exists) into the environment and builds the
// configuration from it.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		dotenv.Load(envFile)
	}

	timeout := client.DefaultTimeout
	if raw := dotenv.Get("OLPULL_TIMEOUT", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: OLPULL_TIMEOUT: %w", err)
		}
		timeout = d
	}

	// The snapshot driver is checked by snapshot.Open, only when a store is used.
	cfg := Config{
		Timeout:   timeout,
		UserAgent: dotenv.Get("OLPULL_USER_AGENT", "olpull"),
		Snapshot: snapshot.Config{
			Driver: dotenv.Get("OLPULL_SNAPSHOT_DRIVER", defaultSnapshotDriver),
			Source: dotenv.Get("OLPULL_SNAPSHOT_SOURCE", defaultSnapshotSource),
			R2: r2.Config{
				AccountID:        dotenv.Get("CF_ACCOUNT_ID", ""),
				AccessKey:        dotenv.Get("CF_ACCESS_KEY", ""),
				SecretAccessKey:  dotenv.Get("CF_SECRET_ACCESS_KEY", ""),
				Bucket:           dotenv.Get("CF_BUCKET", ""),
				EndpointOverride: dotenv.Get("CF_ENDPOINT", ""),
			},
		},
	}
	return cfg, nil
}
