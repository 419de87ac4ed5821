package claims

// Status is the claim lifecycle state.
type Status string

const (
	StatusDraft        Status = "DRAFT"
	StatusValidated    Status = "VALIDATED"
	StatusSubmitted    Status = "SUBMITTED"
	StatusAcknowledged Status = "ACKNOWLEDGED"
	StatusPending      Status = "PENDING"
	StatusPaid         Status = "PAID"
	StatusPartialPaid  Status = "PARTIAL_PAID"
	StatusDenied       Status = "DENIED"
	StatusAppealed     Status = "APPEALED"
	StatusFinalDenied  Status = "FINAL_DENIED"
	StatusVoid         Status = "VOID"
)

// transitions is the closed rule set for claim status changes. PARTIAL_PAID
// enters from PENDING and can only move to appeal or void, mirroring a
// partially paid claim being contested or written off.
var transitions = map[Status][]Status{
	StatusDraft:        {StatusValidated, StatusVoid},
	StatusValidated:    {StatusSubmitted, StatusDraft, StatusVoid},
	StatusSubmitted:    {StatusAcknowledged, StatusDenied, StatusVoid},
	StatusAcknowledged: {StatusPending, StatusDenied, StatusVoid},
	StatusPending:      {StatusPaid, StatusPartialPaid, StatusDenied, StatusVoid},
	StatusPaid:         {StatusVoid},
	StatusPartialPaid:  {StatusAppealed, StatusVoid},
	StatusDenied:       {StatusAppealed, StatusVoid},
	StatusAppealed:     {StatusPending, StatusFinalDenied, StatusVoid},
	StatusFinalDenied:  {StatusVoid},
	StatusVoid:         {},
}

var statusLabels = map[Status]string{
	StatusDraft:        "Draft",
	StatusValidated:    "Validated",
	StatusSubmitted:    "Submitted",
	StatusAcknowledged: "Acknowledged by Payer",
	StatusPending:      "Pending Adjudication",
	StatusPaid:         "Paid",
	StatusPartialPaid:  "Partially Paid",
	StatusDenied:       "Denied",
	StatusAppealed:     "Under Appeal",
	StatusFinalDenied:  "Final Denial",
	StatusVoid:         "Void",
}

// transitionsRequiringData marks target statuses where the caller must supply
// extra fields (denial reason, payment amount).
var transitionsRequiringData = map[Status]bool{
	StatusDenied:      true,
	StatusFinalDenied: true,
	StatusPaid:        true,
	StatusPartialPaid: true,
}

// IsValidStatus reports whether s is a known claim status.
func IsValidStatus(s Status) bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is in the rule set.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransitionError when from -> to is not
// allowed, nil otherwise.
func CheckTransition(from, to Status) error {
	if !IsValidStatus(to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// Label returns the human-readable name of a status.
func (s Status) Label() string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// TransitionOption is one legal next state exposed to callers, with a flag
// for whether extra data must be collected before applying it.
type TransitionOption struct {
	Status       Status `json:"status"`
	Label        string `json:"label"`
	RequiresData bool   `json:"requires_data"`
}

// TransitionOptionsFor lists the legal next states from a status.
func TransitionOptionsFor(s Status) []TransitionOption {
	next := transitions[s]
	options := make([]TransitionOption, 0, len(next))
	for _, target := range next {
		options = append(options, TransitionOption{
			Status:       target,
			Label:        target.Label(),
			RequiresData: transitionsRequiringData[target],
		})
	}
	return options
}
