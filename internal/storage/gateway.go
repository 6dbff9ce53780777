package storage

import (
	"context"
	"encoding/json"
	"fmt"

	authmodels "github.com/taskflow/taskflow/internal/auth/models"
	boardmodels "github.com/taskflow/taskflow/internal/board/models"
	"github.com/taskflow/taskflow/internal/common/config"
)

// Gateway transcodes the three persisted records over a raw Store. It owns
// no data and carries no business logic. A value that fails to parse is
// reported as ErrNotFound, identical to absence.
type Gateway struct {
	store Store
}

// NewGateway wraps a record store.
func NewGateway(store Store) *Gateway {
	return &Gateway{store: store}
}

// NewStoreFromConfig selects the record store implementation by driver.
func NewStoreFromConfig(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "postgres":
		return NewPostgresStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", cfg.Driver)
	}
}

// Close closes the underlying store.
func (g *Gateway) Close() error {
	return g.store.Close()
}

// LoadBoard reads the taskflow_kanban record.
func (g *Gateway) LoadBoard(ctx context.Context) (*boardmodels.Board, error) {
	var board boardmodels.Board
	if err := g.load(ctx, KeyBoard, &board); err != nil {
		return nil, err
	}
	if board.Tasks == nil {
		board.Tasks = map[string][]boardmodels.Task{}
	}
	return &board, nil
}

// SaveBoard writes the full board snapshot to the taskflow_kanban record.
func (g *Gateway) SaveBoard(ctx context.Context, board *boardmodels.Board) error {
	return g.save(ctx, KeyBoard, board)
}

// LoadSession reads the taskflow_session record.
func (g *Gateway) LoadSession(ctx context.Context) (*authmodels.Session, error) {
	var session authmodels.Session
	if err := g.load(ctx, KeySession, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// SaveSession writes the taskflow_session record.
func (g *Gateway) SaveSession(ctx context.Context, session *authmodels.Session) error {
	return g.save(ctx, KeySession, session)
}

// DeleteSession removes the taskflow_session record.
func (g *Gateway) DeleteSession(ctx context.Context) error {
	return g.store.Delete(ctx, KeySession)
}

// LoadUser reads the taskflow_user record.
func (g *Gateway) LoadUser(ctx context.Context) (*authmodels.User, error) {
	var user authmodels.User
	if err := g.load(ctx, KeyUser, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveUser writes the taskflow_user record.
func (g *Gateway) SaveUser(ctx context.Context, user *authmodels.User) error {
	return g.save(ctx, KeyUser, user)
}

// DeleteUser removes the taskflow_user record.
func (g *Gateway) DeleteUser(ctx context.Context) error {
	return g.store.Delete(ctx, KeyUser)
}

func (g *Gateway) load(ctx context.Context, key string, out interface{}) error {
	raw, err := g.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		// A corrupt record is treated exactly like an absent one.
		return ErrNotFound
	}
	return nil
}

func (g *Gateway) save(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to serialize record %s: %w", key, err)
	}
	return g.store.Put(ctx, key, raw)
}
