package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"

	"github.com/pixil98/go-world/internal/storage"
)

const maxNameLength = 12

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+( [A-Za-z0-9_]+)*$`)

type AuthenticatorOpt func(*Authenticator)

// WithAutoRegister creates an account on first login instead of rejecting
// unknown names.
func WithAutoRegister(enabled bool) AuthenticatorOpt {
	return func(a *Authenticator) {
		a.autoRegister = enabled
	}
}

// WithCost sets the bcrypt cost used for new accounts.
func WithCost(cost int) AuthenticatorOpt {
	return func(a *Authenticator) {
		a.cost = cost
	}
}

// WithSpawn sets the starting position of new accounts.
func WithSpawn(x, y uint16) AuthenticatorOpt {
	return func(a *Authenticator) {
		a.spawnX, a.spawnY = x, y
	}
}

// Authenticator checks login credentials against the player store. It is
// safe for concurrent use; password hashing is the expensive part, so
// callers run it off the world lane.
type Authenticator struct {
	store        storage.PlayerStore
	autoRegister bool
	cost         int
	spawnX       uint16
	spawnY       uint16
	now          func() time.Time

	regMu sync.Mutex
}

func New(store storage.PlayerStore, opts ...AuthenticatorOpt) *Authenticator {
	a := &Authenticator{
		store: store,
		cost:  bcrypt.DefaultCost,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Key returns the storage key for a display name. Names that differ only in
// case or in spaces versus underscores map to the same key.
func Key(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength || !namePattern.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	folded := cases.Fold().String(name)
	return strings.ReplaceAll(folded, " ", "_"), nil
}

func (a *Authenticator) Authenticate(ctx context.Context, name string, password string) (*storage.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key, err := Key(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", ErrInvalidCredentials)
	}

	rec, err := a.store.Load(key)
	if errors.Is(err, storage.ErrNotFound) {
		if !a.autoRegister {
			return nil, fmt.Errorf("%w: unknown account", ErrInvalidCredentials)
		}
		return a.register(ctx, key, strings.TrimSpace(name), password)
	}
	if err != nil {
		return nil, fmt.Errorf("loading account %s: %w", key, err)
	}

	return a.verify(rec, password)
}

func (a *Authenticator) verify(rec *storage.PlayerRecord, password string) (*storage.PlayerRecord, error) {
	err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password))
	if err != nil {
		return nil, fmt.Errorf("%w: password mismatch", ErrInvalidCredentials)
	}

	rec.LastLogin = a.now()
	return rec, nil
}

func (a *Authenticator) register(ctx context.Context, key string, name string, password string) (*storage.PlayerRecord, error) {
	a.regMu.Lock()
	defer a.regMu.Unlock()

	// Another login may have registered the name while this one waited.
	if rec, err := a.store.Load(key); err == nil {
		return a.verify(rec, password)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := a.now()
	rec := &storage.PlayerRecord{
		Name:         name,
		PasswordHash: string(hash),
		X:            a.spawnX,
		Y:            a.spawnY,
		RunEnergy:    storage.MaxRunEnergy,
		Created:      now,
		LastLogin:    now,
	}
	if err := a.store.Save(key, rec); err != nil {
		return nil, fmt.Errorf("saving account %s: %w", key, err)
	}

	slog.InfoContext(ctx, "registered account", "name", name)
	return rec, nil
}
