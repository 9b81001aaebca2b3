package reservation

// LedgerEffect identifies which ledger operation a status transition fires
type LedgerEffect int

// A transition fires at most one effect, on the transition edge only
const (
	EffectNone LedgerEffect = iota
	EffectConfirm
	EffectRelease
)

// IsTerminal reports whether a reservation in this status can never change again
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// ValidStatus reports whether the string is a known reservation status
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusConfirmed, StatusInProgress,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// CanTransition reports whether moving from one status to another is allowed.
// A same-status request is not a transition; callers treat it as a no-op
// before consulting this table, which keeps the ledger effects edge-triggered.
func CanTransition(from, to string) bool {
	if from == to {
		return false
	}
	if IsTerminal(from) {
		return false
	}
	switch to {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	case StatusConfirmed:
		return from == StatusPending
	case StatusInProgress:
		return from == StatusPending || from == StatusConfirmed
	}
	return false
}

// EffectFor returns the ledger effect of entering the target status from a
// non-terminal one. A no-show returns the hold to capacity the same way a
// cancellation does: the visit never happened, so the units were not consumed.
func EffectFor(to string) LedgerEffect {
	switch to {
	case StatusCompleted:
		return EffectConfirm
	case StatusCancelled, StatusNoShow:
		return EffectRelease
	}
	return EffectNone
}

// DeductionPolicy decides how many subscription units a set of selected
// services consumes. Kept injectable so a richer policy (e.g. one full groom
// costing several bath-equivalent units) can replace the default.
type DeductionPolicy func(serviceIDs []string) int

// FlatDeduction charges one unit per visit regardless of the services selected
func FlatDeduction(serviceIDs []string) int {
	return 1
}
