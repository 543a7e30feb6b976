package catalog

import (
	"time"

	"thirteen-shop/internal/models"
)

const dayLayout = "2006-01-02"

// Countdown is the time left until the next daily deal
type Countdown struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// DayHash is the 32-bit rolling hash (h = h*31 + c, wrapped to int32) of s.
// Every client must compute the same value for the same string.
func DayHash(s string) int32 {
	var h int32
	for _, c := range s {
		h = h*31 + int32(c)
	}
	return h
}

// DailyDealIndex maps a YYYY-MM-DD string onto [0, n)
func DailyDealIndex(day string, n int) int {
	if n <= 0 {
		return -1
	}
	h := int64(DayHash(day))
	if h < 0 {
		h = -h
	}
	return int(h % int64(n))
}

// GemSleeves returns the gem-priced sleeves in catalog order
func (c *Catalog) GemSleeves() []models.CatalogItem {
	var out []models.CatalogItem
	for _, s := range c.Sleeves {
		if s.Currency == models.CurrencyGems {
			out = append(out, s)
		}
	}
	return out
}

// DailyDealSleeveID returns today's discounted sleeve, keyed on the UTC day
func (c *Catalog) DailyDealSleeveID(now time.Time) (string, bool) {
	sleeves := c.GemSleeves()
	idx := DailyDealIndex(now.UTC().Format(dayLayout), len(sleeves))
	if idx < 0 {
		return "", false
	}
	return sleeves[idx].ID, true
}

// DailyDealTimeRemaining counts down to the next UTC midnight
func DailyDealTimeRemaining(now time.Time) Countdown {
	now = now.UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	left := tomorrow.Sub(now)
	secs := int(left / time.Second)
	return Countdown{
		Hours:   secs / 3600,
		Minutes: secs % 3600 / 60,
		Seconds: secs % 60,
	}
}
