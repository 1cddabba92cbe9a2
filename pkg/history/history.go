// Package history records completed runs.
//
// A [Store] keeps one [Record] per run: where its artifacts went and how they
// were produced. Stores exist for local JSON files, MongoDB and a no-op.
// Recording is best effort; a failing store never fails a run.
package history

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zeromv/zeromv/pkg/errors"
)

// DefaultLimit bounds List when the caller passes 0.
const DefaultLimit = 20

// Backend names accepted by [Open].
const (
	BackendFile  = "file"
	BackendMongo = "mongo"
	BackendNone  = "none"
)

// Record describes one completed run.
type Record struct {
	ID        string        `json:"id" bson:"_id"`
	BaseName  string        `json:"base_name" bson:"base_name"`
	Input     string        `json:"input" bson:"input"`
	RunDir    string        `json:"run_dir" bson:"run_dir"`
	Tiles     []string      `json:"tiles" bson:"tiles"`
	Grid      string        `json:"grid,omitempty" bson:"grid,omitempty"`
	Sheet     string        `json:"sheet,omitempty" bson:"sheet,omitempty"`
	Manifest  string        `json:"manifest,omitempty" bson:"manifest,omitempty"`
	Fallback  bool          `json:"fallback" bson:"fallback"`
	ModelID   string        `json:"model_id" bson:"model_id"`
	Steps     int           `json:"steps" bson:"steps"`
	Device    string        `json:"device" bson:"device"`
	CacheHit  bool          `json:"cache_hit" bson:"cache_hit"`
	CreatedAt time.Time     `json:"created_at" bson:"created_at"`
	Duration  time.Duration `json:"duration_ns" bson:"duration_ns"`
}

// NewID returns a fresh record ID.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the form produced by [NewID].
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Store persists run records.
type Store interface {
	// Append stores rec, assigning ID and CreatedAt when empty.
	Append(ctx context.Context, rec *Record) error
	// List returns up to limit records, newest first.
	List(ctx context.Context, limit int) ([]Record, error)
	// Get returns the record with id, or nil when absent.
	Get(ctx context.Context, id string) (*Record, error)
	Close() error
}

// Options selects and configures a store.
type Options struct {
	Backend    string
	Dir        string
	MongoURI   string
	Database   string
	Collection string
}

// Open returns the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case "", BackendFile:
		return NewFileStore(opts.Dir)
	case BackendMongo:
		return NewMongoStore(ctx, MongoOptions{
			URI:        opts.MongoURI,
			Database:   opts.Database,
			Collection: opts.Collection,
		})
	case BackendNone:
		return NullStore{}, nil
	}
	return nil, errors.New(errors.ErrCodeConfig, "unknown history backend %q (want file, mongo or none)", opts.Backend)
}

// DefaultDir returns $XDG_DATA_HOME/zeromv/history, falling back to
// ~/.local/share/zeromv/history.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "zeromv", "history"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeStorage, err, "locate home directory")
	}
	return filepath.Join(home, ".local", "share", "zeromv", "history"), nil
}

func prepare(rec *Record) {
	if rec.ID == "" {
		rec.ID = NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

// NullStore discards records.
type NullStore struct{}

func (NullStore) Append(_ context.Context, rec *Record) error {
	prepare(rec)
	return nil
}
func (NullStore) List(context.Context, int) ([]Record, error)  { return nil, nil }
func (NullStore) Get(context.Context, string) (*Record, error) { return nil, nil }
func (NullStore) Close() error                                 { return nil }

var _ Store = NullStore{}
