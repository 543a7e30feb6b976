package service

import (
	"errors"
	"fmt"
)

var (
	ErrNoPendingPurchase  = errors.New("no pending purchase")
	ErrPurchaseInFlight   = errors.New("purchase already in flight")
	ErrControllerBusy     = errors.New("purchase controller is executing")
	ErrAlreadyOwned       = errors.New("item already owned")
	ErrUnknownItem        = errors.New("unknown item")
	ErrNotForSale         = errors.New("item is not for sale")
	ErrVoucherUnavailable = errors.New("voucher not available")
	ErrPurchaseRejected   = errors.New("purchase rejected by backend")
	ErrNoProfile          = errors.New("profile not loaded")
	ErrNotInInventory     = errors.New("item not in inventory")

	ErrAdUnavailable    = errors.New("ad not available")
	ErrAdClosedEarly    = errors.New("ad closed before reward")
	ErrClaimTimeout     = errors.New("reward claim timed out")
	ErrAdAlreadyClaimed = errors.New("ad view already claimed")
	ErrClaimRejected    = errors.New("reward claim rejected")
)

// Purchase steps that can commit ahead of the rest of a purchase
const (
	StepVoucher      = "voucher_decrement"
	StepPhraseUnlock = "phrase_unlock"
	StepBundlePhrase = "bundle_phrase_unlock"
)

// PartialFailureError reports a purchase whose first step committed before a
// later step failed. Compensated tells whether the first step was reversed.
type PartialFailureError struct {
	Step        string
	Compensated bool
	Err         error
}

func (e *PartialFailureError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("%s failed and was reversed: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed after payment was taken: %v", e.Step, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}
