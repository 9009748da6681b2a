package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"partnerline/internal/config"
	"partnerline/internal/domain"
	"partnerline/internal/engine/auth"
	"partnerline/internal/events"
	"partnerline/internal/repo"
)

// SystemActor authors passive transitions that no business triggered.
const SystemActor = "system"

const systemName = "System"

// Directory resolves businesses by id.
type Directory interface {
	GetBusiness(ctx context.Context, id string) (domain.Business, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Auth      auth.Service
	Directory Directory
	Config    *config.Config
	Log       *zap.Logger
	Now       func() time.Time

	locks *keyedMutex
}

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Auth:      auth.Service{Repo: r, Moderators: cfg.RBAC.Moderators},
		Directory: r,
		Config:    cfg,
		Log:       log,
		Now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) timestamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

// appendEvent records an action log entry in tx, stamped with the engine clock
// unless the writer carries its own.
func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return storeErr("append event", err)
	}
	return nil
}

func (e Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e Engine) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin transaction", err)
	}
	return tx, nil
}

func (e Engine) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// storeErr keeps domain and context errors matchable and reports any other
// persistence failure as unavailable.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrNotFound, domain.ErrForbidden, domain.ErrInvalidTransition, domain.ErrValidation,
		domain.ErrConflict, domain.ErrUnavailable, domain.ErrUnauthorized,
		context.Canceled, context.DeadlineExceeded,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return domain.Unavailable(op, err)
}

func requireActor(actorID string) error {
	if actorID == "" {
		return fmt.Errorf("actor id required: %w", domain.ErrUnauthorized)
	}
	return nil
}

// business resolves id through the directory. Unknown ids are NotFound,
// lookup failures are Unavailable.
func (e Engine) business(ctx context.Context, id string) (domain.Business, error) {
	b, err := e.Directory.GetBusiness(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Business{}, fmt.Errorf("business %s: %w", id, domain.ErrNotFound)
		}
		return domain.Business{}, storeErr("directory lookup", err)
	}
	return b, nil
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: map[string]*keyedEntry{}}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (e Engine) lock(key string) func() {
	if e.locks == nil {
		return func() {}
	}
	return e.locks.Lock(key)
}
