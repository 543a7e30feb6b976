package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"thirteen-shop/internal/refdata"
	"thirteen-shop/internal/util"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Postgres error classes the gateway maps
const (
	pgQueryCanceled  = "57014"
	pgRaiseException = "P0001"
)

// ErrProfileNotFound is returned when no profile row exists for an id
var ErrProfileNotFound = errors.New("profile not found")

// RPCError is an exception raised inside a backend function
type RPCError struct {
	Function string
	Message  string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s: %s", e.Function, e.Message)
}

// Store calls the shop backend functions of the Supabase Postgres database
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger

	mu       sync.RWMutex
	claims   string
	emotes   []emoteRow
	emotesAt time.Time
	emoteTTL time.Duration
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, logger: util.Component("store"), emoteTTL: 10 * time.Minute}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SetSessionClaims sets the JWT claims JSON forwarded to functions that
// identify the caller from the request, such as claim_ad_reward_gems
func (s *Store) SetSessionClaims(claimsJSON string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims = claimsJSON
}

func (s *Store) sessionClaims() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.claims
}

// call runs one backend function inside a span and normalises its error
func (s *Store) call(ctx context.Context, fn string, run func(ctx context.Context) error) error {
	ctx, span := util.StartSpan(ctx, "store."+fn, attribute.String("db.function", fn))
	err := mapError(fn, run(ctx))
	util.EndSpan(span, err)

	if err != nil {
		if refdata.IsAborted(err) {
			s.logger.Debug("Backend call aborted", zap.String("function", fn), zap.Error(err))
		} else {
			s.logger.Error("Backend call failed", zap.String("function", fn), zap.Error(err))
		}
	}
	return err
}

// mapError turns driver errors into gateway errors. Cancelled statements are
// reported as aborts so reference data fetches can be retried.
func mapError(fn string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", fn, refdata.ErrAborted, err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pgQueryCanceled:
			return fmt.Errorf("%s: %w", fn, refdata.ErrAborted)
		case pgRaiseException:
			return &RPCError{Function: fn, Message: pqErr.Message}
		}
	}
	return fmt.Errorf("%s: %w", fn, err)
}
