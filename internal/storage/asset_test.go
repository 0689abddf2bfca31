package storage

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/pixil98/go-testutil"
)

// testSpec is a simple ValidatingSpec for testing
type testSpec struct {
	valid bool
}

func (s *testSpec) Validate() error {
	if !s.valid {
		return fmt.Errorf("spec is invalid")
	}
	return nil
}

func TestAsset_Validate(t *testing.T) {
	tests := map[string]struct {
		asset   Asset[*testSpec]
		expErrs []string
	}{
		"valid asset": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "test_key",
				Spec:    &testSpec{valid: true},
			},
			expErrs: nil,
		},
		"version not set": {
			asset: Asset[*testSpec]{
				Version: 0,
				Key:     "test",
				Spec:    &testSpec{valid: true},
			},
			expErrs: []string{"version must be set"},
		},
		"empty key": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "",
				Spec:    &testSpec{valid: true},
			},
			expErrs: []string{"key must be set"},
		},
		"key with spaces": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "test key",
				Spec:    &testSpec{valid: true},
			},
			expErrs: []string{"invalid storage key"},
		},
		"key with uppercase": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "Test",
				Spec:    &testSpec{valid: true},
			},
			expErrs: []string{"invalid storage key"},
		},
		"key with path separator": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "../etc",
				Spec:    &testSpec{valid: true},
			},
			expErrs: []string{"invalid storage key"},
		},
		"invalid spec": {
			asset: Asset[*testSpec]{
				Version: 1,
				Key:     "test",
				Spec:    &testSpec{valid: false},
			},
			expErrs: []string{"spec is invalid"},
		},
		"multiple errors": {
			asset: Asset[*testSpec]{
				Version: 0,
				Key:     "",
				Spec:    &testSpec{valid: false},
			},
			expErrs: []string{
				"version must be set",
				"key must be set",
				"spec is invalid",
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := tt.asset.Validate()

			if len(tt.expErrs) == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}

			if err == nil {
				t.Errorf("expected errors %v, got nil", tt.expErrs)
				return
			}

			errStr := err.Error()
			for _, e := range tt.expErrs {
				if !strings.Contains(errStr, e) {
					t.Errorf("error %q does not contain %q", errStr, e)
				}
			}
		})
	}
}

func TestDecodeAsset(t *testing.T) {
	tests := map[string]struct {
		key    string
		data   string
		expErr string
	}{
		"valid": {
			key:  "bob",
			data: `{"version":1,"key":"bob","spec":{"name":"Bob","password_hash":"x"}}`,
		},
		"bad json": {
			key:    "bob",
			data:   `{invalid json`,
			expErr: "unmarshalling asset",
		},
		"missing spec": {
			key:    "bob",
			data:   `{"version":1,"key":"bob"}`,
			expErr: "record must be set",
		},
		"key mismatch": {
			key:    "bob",
			data:   `{"version":1,"key":"alice","spec":{"name":"Alice","password_hash":"x"}}`,
			expErr: "does not match",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec, err := decodeAsset[*PlayerRecord](tt.key, []byte(tt.data))
			if tt.expErr != "" {
				testutil.AssertErrorContains(t, err, tt.expErr)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			testutil.AssertEqual(t, "name", rec.Name, "Bob")
		})
	}
}

func TestEncodeAsset_InvalidKey(t *testing.T) {
	_, err := encodeAsset("Not Valid", &testSpec{valid: true})
	testutil.AssertEqual(t, "invalid key", errors.Is(err, ErrInvalidKey), true)
}
