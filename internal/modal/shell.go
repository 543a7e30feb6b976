// Package modal is the presentation shell the shop reports to: one active modal
// at a time plus a bounded feed of toasts. It holds no purchase state.
package modal

import (
	"sync"
	"time"

	"thirteen-shop/internal/models"

	"github.com/google/uuid"
)

// Kind of modal
type Kind string

const (
	KindPurchaseSuccess Kind = "purchase_success"
	KindEquipSuccess    Kind = "equip_success"
	KindPackOpened      Kind = "pack_opened"
	KindGemsAdded       Kind = "gems_added"
	KindAdReward        Kind = "ad_reward"
	KindUpsell          Kind = "upsell"
)

// Effect is the particle burst played with a modal
type Effect string

const (
	EffectNone     Effect = ""
	EffectConfetti Effect = "confetti"
	EffectGemRain  Effect = "gem_rain"
)

// Modal is an overlay shown to the player
type Modal struct {
	ID        string          `json:"id"`
	Kind      Kind            `json:"kind"`
	Title     string          `json:"title"`
	Message   string          `json:"message,omitempty"`
	ItemID    string          `json:"item_id,omitempty"`
	ItemType  models.ItemType `json:"item_type,omitempty"`
	Amount    int64           `json:"amount"`
	Currency  models.Currency `json:"currency,omitempty"`
	Finishers []string        `json:"finishers,omitempty"`
	Effect    Effect          `json:"effect,omitempty"`
	OpenedAt  time.Time       `json:"opened_at"`
	AutoClose time.Duration   `json:"auto_close"`
}

// Level of a toast
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Toast is a transient notification
type Toast struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

const maxToasts = 20

// Shell holds the visible overlays
type Shell struct {
	mu         sync.Mutex
	current    *Modal
	generation uint64
	timer      *time.Timer
	toasts     []Toast
	closed     bool
}

// NewShell creates an empty shell
func NewShell() *Shell {
	return &Shell{}
}

// Open replaces the current modal. A positive AutoClose dismisses it after that
// long unless it was replaced or the shell closed first.
func (s *Shell) Open(m Modal) Modal {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.OpenedAt.IsZero() {
		m.OpenedAt = time.Now()
	}
	if s.closed {
		return m
	}

	s.stopTimerLocked()
	s.generation++
	s.current = &m

	if m.AutoClose > 0 {
		gen := s.generation
		s.timer = time.AfterFunc(m.AutoClose, func() {
			s.expire(gen)
		})
	}
	return m
}

func (s *Shell) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return
	}
	s.current = nil
	s.timer = nil
}

// Dismiss closes the current modal
func (s *Shell) Dismiss() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.generation++
	s.current = nil
}

// Current returns the visible modal, if any
func (s *Shell) Current() (Modal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Modal{}, false
	}
	return *s.current, true
}

// Toast appends a notification, dropping the oldest beyond the feed size
func (s *Shell) Toast(level Level, message string) Toast {
	t := Toast{ID: uuid.New().String(), Level: level, Message: message, CreatedAt: time.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return t
	}
	s.toasts = append(s.toasts, t)
	if len(s.toasts) > maxToasts {
		s.toasts = s.toasts[len(s.toasts)-maxToasts:]
	}
	return t
}

// Toasts returns the feed, oldest first
func (s *Shell) Toasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Toast, len(s.toasts))
	copy(out, s.toasts)
	return out
}

// DrainToasts returns the feed and empties it
func (s *Shell) DrainToasts() []Toast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.toasts
	s.toasts = nil
	return out
}

// Close stops pending timers. Later calls leave the shell untouched.
func (s *Shell) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.closed = true
	s.current = nil
}

func (s *Shell) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}
