package checkout

import (
	"fmt"

	"github.com/go-faster/errors"
)

// State is a step of the order submission flow.
type State int

// Submission states. Failed is reachable from Validating, SubmittingOrder and
// SubmittingItems; Confirmed is the only success state.
const (
	Idle State = iota
	Validating
	SubmittingOrder
	SubmittingItems
	Confirmed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case SubmittingOrder:
		return "submitting_order"
	case SubmittingItems:
		return "submitting_items"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sentinel errors for checkout validation.
var (
	ErrEmptyCart          = errors.New("cart is empty")
	ErrCheckoutInProgress = errors.New("checkout already in progress")
)

// ProductNotFoundError indicates a cart line references a product that no
// longer exists in the catalog.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// StageError reports a failed remote write. Its message is the store's error
// text, unchanged.
type StageError struct {
	// Stage is SubmittingOrder or SubmittingItems.
	Stage State
	// OrderID is set when the header was written before the failure.
	OrderID string
	// Orphaned reports that the header remains stored without items.
	Orphaned bool
	Err      error
}

func (e *StageError) Error() string {
	return e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}
