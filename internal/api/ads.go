package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"thirteen-shop/internal/models"
	"thirteen-shop/internal/service"
	"thirteen-shop/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errNoAdShowing = errors.New("no ad is showing for this placement")

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type adCallbacks struct {
	onReward     func(amount int64)
	onEarlyClose func()
}

// AdBridge stands in for the rewarded-ad SDK, which runs in the UI shell.
// The shell reports loads, completed views and early closes over HTTP.
type AdBridge struct {
	mu      sync.Mutex
	loaded  map[string]bool
	showing map[string]adCallbacks
	settled map[string]error
	logger  *zap.Logger
}

var _ service.AdCanceler = (*AdBridge)(nil)

// NewAdBridge creates a bridge with nothing loaded
func NewAdBridge() *AdBridge {
	return &AdBridge{
		loaded:  make(map[string]bool),
		showing: make(map[string]adCallbacks),
		settled: make(map[string]error),
		logger:  util.Component("adsdk"),
	}
}

// SetLoaded records whether the shell has an ad ready for placement
func (b *AdBridge) SetLoaded(placement string, loaded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaded[placement] = loaded
}

// IsLoaded reports whether an ad is ready for placement
func (b *AdBridge) IsLoaded(placement string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded[placement]
}

// Show consumes the loaded ad and waits for the shell to report its outcome
func (b *AdBridge) Show(_ context.Context, placement string, onReward func(int64), onEarlyClose func()) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.loaded[placement] {
		return false
	}
	if _, busy := b.showing[placement]; busy {
		return false
	}
	b.loaded[placement] = false
	delete(b.settled, placement)
	b.showing[placement] = adCallbacks{onReward: onReward, onEarlyClose: onEarlyClose}
	b.logger.Debug("Ad shown", zap.String("placement", placement))
	return true
}

// take ends the showing ad and records how it ended. For a placement with no
// ad showing it returns why the last one is gone.
func (b *AdBridge) take(placement string, outcome error) (adCallbacks, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.showing[placement]
	if !ok {
		if err := b.settled[placement]; err != nil {
			return adCallbacks{}, err
		}
		return adCallbacks{}, errNoAdShowing
	}
	delete(b.showing, placement)
	b.settled[placement] = outcome
	return cb, nil
}

// Reward reports a fully watched ad. The reward is claimed before it returns.
func (b *AdBridge) Reward(placement string, amount int64) error {
	cb, err := b.take(placement, service.ErrAdAlreadyClaimed)
	if err != nil {
		return err
	}
	cb.onReward(amount)
	return nil
}

// EarlyClose reports an ad dismissed before the reward point
func (b *AdBridge) EarlyClose(placement string) error {
	cb, err := b.take(placement, service.ErrAdClosedEarly)
	if err != nil {
		return err
	}
	cb.onEarlyClose()
	return nil
}

// Cancel forgets an ad whose outcome the shell never reported
func (b *AdBridge) Cancel(placement string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.showing[placement]; ok {
		delete(b.showing, placement)
		b.logger.Warn("Ad abandoned", zap.String("placement", placement))
	}
}

func validPlacement(c *gin.Context) (string, bool) {
	placement := c.Param("placement")
	switch placement {
	case service.PlacementShop, service.PlacementInventory:
		return placement, true
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "Unknown ad placement"})
	return "", false
}

func (h *Handler) adStatus(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.svc.Ads.Status(placement))
}

func (h *Handler) watchAd(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	viewID, err := h.svc.Ads.Watch(c.Request.Context(), placement)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"view_id": viewID,
		"status":  h.svc.Ads.Status(placement),
	})
}

func (h *Handler) adLoaded(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	req := struct {
		Loaded *bool `json:"loaded"`
	}{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	loaded := req.Loaded == nil || *req.Loaded
	h.svc.AdBridge.SetLoaded(placement, loaded)
	c.JSON(http.StatusOK, h.svc.Ads.Status(placement))
}

func (h *Handler) adReward(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	req := struct {
		Amount int64 `json:"amount"`
	}{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}
	if err := h.svc.AdBridge.Reward(placement, req.Amount); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": h.svc.Ads.Status(placement),
		"weekly": h.svc.Ads.WeeklyProgress(),
	})
}

func (h *Handler) adClosed(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	if err := h.svc.AdBridge.EarlyClose(placement); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Ads.Status(placement))
}

// weeklyProgress reloads the weekly allowance, falling back to the last
// known value when the backend is unreachable
func (h *Handler) weeklyProgress(c *gin.Context) {
	progress, err := h.svc.Ads.RefreshWeekly(c.Request.Context())
	if err != nil {
		h.logger.Warn("Weekly progress refresh failed", zap.Error(err))
		progress = h.svc.Ads.WeeklyProgress()
	}
	c.JSON(http.StatusOK, progress)
}

// streamAdState pushes the placement status on every state change
func (h *Handler) streamAdState(c *gin.Context) {
	placement, ok := validPlacement(c)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates := make(chan service.AdState, 16)
	unsubscribe := h.svc.Ads.OnStateChange(placement, func(s service.AdState) {
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	closed := readUntilClosed(conn)
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	if err := writeJSON(conn, h.svc.Ads.Status(placement)); err != nil {
		return
	}
	for {
		select {
		case <-closed:
			return
		case s := <-updates:
			status := h.svc.Ads.Status(placement)
			status.State = s
			if err := writeJSON(conn, status); err != nil {
				h.logger.Debug("Ad state stream closed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamBooster pushes the booster countdown until it expires
func (h *Handler) streamBooster(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	closed := readUntilClosed(conn)
	go func() {
		select {
		case <-closed:
			cancel()
		case <-ctx.Done():
		}
	}()

	now := h.now
	h.svc.Boosters.Tick(ctx, c.Param("id"), h.svc.TickEvery, func(b models.Booster) {
		msg := gin.H{"booster": b, "seconds_left": int64(b.TimeLeft(now()) / time.Second)}
		if err := writeJSON(conn, msg); err != nil {
			cancel()
		}
	})

	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "booster ended"))
}

func writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteJSON(v)
}

// readUntilClosed drains client frames so control messages are processed.
// The returned channel closes when the peer goes away.
func readUntilClosed(conn *websocket.Conn) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return done
}
