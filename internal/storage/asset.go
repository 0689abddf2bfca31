package storage

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/pixil98/go-errors"
)

const assetVersion = 1

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type ValidatingSpec interface {
	Validate() error
}

// Asset is the persisted envelope around a stored value.
type Asset[T ValidatingSpec] struct {
	Version uint   `json:"version"`
	Key     string `json:"key"`
	Spec    T      `json:"spec"`
}

func (a *Asset[T]) Validate() error {
	el := errors.NewErrorList()

	if a.Version == 0 {
		el.Add(fmt.Errorf("version must be set"))
	}

	if a.Key == "" {
		el.Add(fmt.Errorf("key must be set"))
	} else if err := ValidateKey(a.Key); err != nil {
		el.Add(err)
	}

	el.Add(a.Spec.Validate())

	return el.Err()
}

// ValidateKey reports whether key can be used as a storage key. Keys are
// lowercase letters, digits and underscores.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func encodeAsset[T ValidatingSpec](key string, v T) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	data, err := json.Marshal(&Asset[T]{
		Version: assetVersion,
		Key:     key,
		Spec:    v,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling json: %w", err)
	}
	return data, nil
}

func decodeAsset[T ValidatingSpec](key string, data []byte) (T, error) {
	var zero T

	asset := &Asset[T]{}
	if err := json.Unmarshal(data, asset); err != nil {
		return zero, fmt.Errorf("unmarshalling asset: %w", err)
	}
	if err := asset.Validate(); err != nil {
		return zero, fmt.Errorf("validating %s: %w", key, err)
	}
	if asset.Key != key {
		return zero, fmt.Errorf("asset key %q does not match %q", asset.Key, key)
	}
	return asset.Spec, nil
}
