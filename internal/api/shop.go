package api

import (
	"fmt"
	"net/http"
	"strconv"

	"thirteen-shop/internal/catalog"
	"thirteen-shop/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SelectRequest picks the item to purchase or equip
type SelectRequest struct {
	Type models.ItemType `json:"type" binding:"required"`
	ID   string          `json:"id" binding:"required"`
}

// ConfirmRequest reviews the pending purchase
type ConfirmRequest struct {
	UseVoucher bool `json:"use_voucher"`
}

// DailyDealView is the sleeve on sale today and the time left
type DailyDealView struct {
	SleeveID        string            `json:"sleeve_id,omitempty"`
	DiscountPercent int               `json:"discount_percent"`
	EndsIn          catalog.Countdown `json:"ends_in"`
}

// getCatalog lists the static catalogs with today's deal
func (h *Handler) getCatalog(c *gin.Context) {
	now := h.now()
	cat := h.svc.Catalog

	deal := DailyDealView{
		DiscountPercent: cat.DailyDealPercent,
		EndsIn:          catalog.DailyDealTimeRemaining(now),
	}
	if id, ok := cat.DailyDealSleeveID(now); ok {
		deal.SleeveID = id
	}

	c.JSON(http.StatusOK, gin.H{
		"sleeves":     cat.Sleeves,
		"boards":      cat.Boards,
		"items":       cat.Items,
		"packs":       cat.Packs,
		"gem_bundles": cat.GemBundles,
		"daily_deal":  deal,
	})
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.svc.Profiles.Ensure(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) refreshProfile(c *gin.Context) {
	profile, err := h.svc.Profiles.Refresh(c.Request.Context(), "manual")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// listEmotes returns the emote catalog; ?refresh=true bypasses every cache
func (h *Handler) listEmotes(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		emotes []models.Emote
		err    error
	)
	if c.Query("refresh") == "true" {
		emotes, err = h.svc.RefData.RefreshEmotes(ctx)
	} else {
		emotes, err = h.svc.RefData.Emotes(ctx)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"emotes": emotes})
}

func (h *Handler) listFinishers(c *gin.Context) {
	finishers, err := h.svc.RefData.Finishers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"finishers": finishers})
}

func (h *Handler) listChatPresets(c *gin.Context) {
	presets, err := h.svc.RefData.ChatPresets(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat_presets": presets})
}

func (h *Handler) refDataState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.RefData.States())
}

func (h *Handler) purchaseState(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.Controller.State())
}

func (h *Handler) selectItem(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	pending, err := h.svc.Controller.Select(c.Request.Context(), models.ItemRef{Type: req.Type, ID: req.ID})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

func (h *Handler) confirmPurchase(c *gin.Context) {
	var req ConfirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	pending, err := h.svc.Controller.Confirm(req.UseVoucher)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// executePurchase runs the pending purchase. Insufficient funds are a normal
// result, reported with the shortfall rather than an error status.
func (h *Handler) executePurchase(c *gin.Context) {
	res, err := h.svc.Controller.Execute(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) cancelPurchase(c *gin.Context) {
	if err := h.svc.Controller.Cancel(); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.svc.Controller.State())
}

func (h *Handler) getInventory(c *gin.Context) {
	view, err := h.svc.Boosters.Current(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) activateBooster(c *gin.Context) {
	if err := h.svc.Boosters.Activate(c.Request.Context(), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	view, err := h.svc.Boosters.Current(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// getShell returns the active modal, if any, and the toast feed
func (h *Handler) getShell(c *gin.Context) {
	resp := gin.H{"toasts": h.svc.Shell.Toasts()}
	if m, ok := h.svc.Shell.Current(); ok {
		resp["modal"] = m
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) dismissModal(c *gin.Context) {
	h.svc.Shell.Dismiss()
	c.Status(http.StatusNoContent)
}

// listToasts returns the toast feed; ?drain=true also clears it
func (h *Handler) listToasts(c *gin.Context) {
	if c.Query("drain") == "true" {
		c.JSON(http.StatusOK, gin.H{"toasts": h.svc.Shell.DrainToasts()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"toasts": h.svc.Shell.Toasts()})
}

// useEmote counts one use of a known emote trigger
func (h *Handler) useEmote(c *gin.Context) {
	ctx := c.Request.Context()
	trigger := c.Param("trigger")

	emotes, err := h.svc.RefData.Emotes(ctx)
	if err != nil {
		h.writeError(c, err)
		return
	}
	known := false
	for _, e := range emotes {
		if e.TriggerCode == trigger {
			known = true
			break
		}
	}
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown emote trigger %q", trigger)})
		return
	}

	profileID := h.svc.Profiles.ProfileID()
	if err := h.svc.Usage.RecordEmoteUse(ctx, profileID, trigger); err != nil {
		h.writeError(c, err)
		return
	}
	h.logger.Debug("Emote used", zap.String("trigger", trigger))
	c.Status(http.StatusNoContent)
}

// emoteStats returns the most used emotes, ?limit=N (default 5)
func (h *Handler) emoteStats(c *gin.Context) {
	ctx := c.Request.Context()
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
		return
	}

	profileID := h.svc.Profiles.ProfileID()
	stats, err := h.svc.Usage.Stats(ctx, profileID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := gin.H{"stats": stats}
	if fav, ok, err := h.svc.Usage.MostUsedEmote(ctx, profileID); err == nil && ok {
		resp["favorite"] = fav
	}
	c.JSON(http.StatusOK, resp)
}
