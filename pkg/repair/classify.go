package repair

import "github.com/payrail/payrail/pkg/saga"

// Classify maps a saga failure report to a repair type using the two leg
// outcomes and whether compensation itself failed.
func Classify(report *saga.FailureReport) Type {
	if report == nil {
		return TypeManualReview
	}
	debit := report.Debit.Status
	credit := report.Credit.Status

	// A failed reversal leaves one leg settled downstream while the
	// record says otherwise. That inconsistency outranks every other
	// classification.
	if report.CompensationFailed {
		if debit == saga.LegStatusFailed && credit != saga.LegStatusSuccess {
			return TypeDebitCreditMismatch
		}
		if credit == saga.LegStatusFailed && debit != saga.LegStatusSuccess {
			return TypeDebitCreditMismatch
		}
	}

	switch {
	case debit == saga.LegStatusSuccess && credit == saga.LegStatusSuccess:
		// Both money legs settled; a later step failed.
		return TypePartialSuccess
	case credit == saga.LegStatusTimeout:
		return TypeCreditTimeout
	case credit == saga.LegStatusFailed:
		return TypeCreditFailed
	case debit == saga.LegStatusTimeout:
		return TypeDebitTimeout
	case debit == saga.LegStatusFailed:
		return TypeDebitFailed
	case debit == saga.LegStatusPending && credit == saga.LegStatusPending:
		// Nothing moved downstream; the failure is internal.
		return TypeSystemError
	default:
		return TypeManualReview
	}
}

func priorityFor(repairType Type) int {
	switch repairType {
	case TypeDebitCreditMismatch, TypePartialSuccess:
		return PriorityCritical
	case TypeDebitTimeout, TypeCreditTimeout:
		return PriorityHigh
	case TypeDebitFailed, TypeCreditFailed:
		return PriorityNormal
	default:
		return PriorityLow
	}
}
