package service

// Quote is the price shown and charged for a pending purchase
type Quote struct {
	Base           int64 `json:"base"`
	AfterDeal      int64 `json:"after_deal"`
	Final          int64 `json:"final"`
	DealApplied    bool  `json:"deal_applied"`
	VoucherApplied bool  `json:"voucher_applied"`
}

// PercentOff floors price*(100-pct)/100
func PercentOff(price int64, pct int) int64 {
	if pct <= 0 {
		return price
	}
	if pct >= 100 {
		return 0
	}
	return price * int64(100-pct) / 100
}

// QuotePrice applies the daily deal first and the voucher second, flooring
// after each step, so displayed and charged amounts match.
func QuotePrice(base int64, dealPct int, deal bool, voucherPct int, voucher bool) Quote {
	q := Quote{Base: base, AfterDeal: base}
	if deal {
		q.AfterDeal = PercentOff(base, dealPct)
		q.DealApplied = true
	}
	q.Final = q.AfterDeal
	if voucher {
		q.Final = PercentOff(q.AfterDeal, voucherPct)
		q.VoucherApplied = true
	}
	return q
}
