package command

import (
	"fmt"
	"io"
	"os"

	"github.com/pixil98/go-errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/pixil98/go-world/internal/auth"
	"github.com/pixil98/go-world/internal/storage"
)

const (
	DriverFile = "file"
	DriverBolt = "bolt"

	DefaultBucket = "players"
)

type StorageConfig struct {
	// Driver is "file" for one JSON file per player under Path, or "bolt"
	// for a single bbolt database at Path.
	Driver       string `json:"driver"`
	Path         string `json:"path"`
	Bucket       string `json:"bucket"`
	AutoRegister bool   `json:"auto_register"`
	BcryptCost   int    `json:"bcrypt_cost"`
}

func (c *StorageConfig) driver() string {
	if c.Driver == "" {
		return DriverFile
	}
	return c.Driver
}

func (c *StorageConfig) validate() error {
	el := errors.NewErrorList()

	if c.Path == "" {
		el.Add(fmt.Errorf("path is required"))
	}

	switch c.driver() {
	case DriverFile:
		if c.Path != "" {
			if _, err := os.Stat(c.Path); err != nil {
				el.Add(fmt.Errorf("invalid path %q: %w", c.Path, err))
			}
		}
	case DriverBolt:
	default:
		el.Add(fmt.Errorf("unknown driver %q", c.Driver))
	}

	if c.BcryptCost != 0 && (c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost) {
		el.Add(fmt.Errorf("bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost))
	}

	return el.Err()
}

// buildStore opens the backend and wraps it in a cache. The returned closer
// is nil for backends that hold no resources.
func (c *StorageConfig) buildStore() (*storage.CachedStore[*storage.PlayerRecord], io.Closer, error) {
	switch c.driver() {
	case DriverBolt:
		bucket := c.Bucket
		if bucket == "" {
			bucket = DefaultBucket
		}
		s, err := storage.OpenBoltStore[*storage.PlayerRecord](c.Path, bucket)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewCachedStore[*storage.PlayerRecord](s), s, nil
	default:
		s, err := storage.NewFileStore[*storage.PlayerRecord](c.Path)
		if err != nil {
			return nil, nil, err
		}
		return storage.NewCachedStore[*storage.PlayerRecord](s), nil, nil
	}
}

func (c *StorageConfig) buildAuthenticator(store storage.PlayerStore, spawnX, spawnY uint16) *auth.Authenticator {
	opts := []auth.AuthenticatorOpt{
		auth.WithAutoRegister(c.AutoRegister),
		auth.WithSpawn(spawnX, spawnY),
	}
	if c.BcryptCost != 0 {
		opts = append(opts, auth.WithCost(c.BcryptCost))
	}
	return auth.New(store, opts...)
}
