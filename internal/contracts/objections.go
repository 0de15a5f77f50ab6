package contracts

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/viviendahub/go-viviendahub/internal/contracts/workflow"
)

// MinJustificationLength is the minimum length of an objection justification.
const MinJustificationLength = 20

// ObjectionPriority ranks how pressing an objection is.
type ObjectionPriority string

// All objection priorities.
const (
	ObjectionPriorityLow      ObjectionPriority = "low"
	ObjectionPriorityMedium   ObjectionPriority = "medium"
	ObjectionPriorityHigh     ObjectionPriority = "high"
	ObjectionPriorityCritical ObjectionPriority = "critical"
)

// Valid reports whether p is a known priority.
func (p ObjectionPriority) Valid() bool {
	switch p {
	case ObjectionPriorityLow, ObjectionPriorityMedium, ObjectionPriorityHigh, ObjectionPriorityCritical:
		return true
	}
	return false
}

// ObjectionStatus is the lifecycle status of an objection. Transitions move
// forward only.
type ObjectionStatus string

// All objection statuses.
const (
	ObjectionPending           ObjectionStatus = "pending"
	ObjectionUnderReview       ObjectionStatus = "under_review"
	ObjectionAccepted          ObjectionStatus = "accepted"
	ObjectionRejected          ObjectionStatus = "rejected"
	ObjectionPartiallyAccepted ObjectionStatus = "partially_accepted"
	ObjectionResolved          ObjectionStatus = "resolved"
	ObjectionWithdrawn         ObjectionStatus = "withdrawn"
)

// Open reports whether the objection still awaits a response.
func (s ObjectionStatus) Open() bool {
	return s == ObjectionPending || s == ObjectionUnderReview
}

// ObjectionResponse is the decision taken on an objection.
type ObjectionResponse string

// Possible objection responses.
const (
	ResponseAccepted ObjectionResponse = "ACCEPTED"
	ResponseRejected ObjectionResponse = "REJECTED"
)

// OverdueObjectionAge is the pending age beyond which an objection is
// reported as overdue.
const OverdueObjectionAge = 5 * 24 * time.Hour

// Objection is a structured counter-proposal against one field of the
// contract. Accepting it mutates that field.
type Objection struct {
	ID                      uuid.UUID         `json:"id"`
	ContractID              uuid.UUID         `json:"contract_id"`
	ObjectedBy              uuid.UUID         `json:"objected_by"`
	ObjectorRole            workflow.Role     `json:"objector_role"`
	FieldReference          string            `json:"field_reference"`
	CurrentValue            interface{}       `json:"current_value,omitempty"`
	ProposedValue           interface{}       `json:"proposed_value"`
	Justification           string            `json:"justification"`
	Priority                ObjectionPriority `json:"priority"`
	Status                  ObjectionStatus   `json:"status"`
	ResponderID             *uuid.UUID        `json:"responder_id,omitempty"`
	ResponseNote            string            `json:"response_note,omitempty"`
	CounterProposal         interface{}       `json:"counter_proposal,omitempty"`
	RequiresManualAmendment bool              `json:"requires_manual_amendment"`
	SubmittedAt             time.Time         `json:"submitted_at"`
	ReviewedAt              *time.Time        `json:"reviewed_at,omitempty"`
	ResolvedAt              *time.Time        `json:"resolved_at,omitempty"`
}

// Overdue reports whether the objection is still open past the overdue age.
func (o *Objection) Overdue(now time.Time) bool {
	return o.Status.Open() && now.Sub(o.SubmittedAt) >= OverdueObjectionAge
}

// payloadSections lists the structured sections a field_reference may target,
// in resolution order.
var payloadSections = []string{"landlord_data", "tenant_data", "contract_terms", "economic_terms"}

// ApplyFieldReference writes value into the contract location named by ref.
// A ref may be section-qualified ("economic_terms.monthly_rent"), a bare key
// resolved against the payload sections in order (first match wins), or one
// of the mutable scalar fields. It returns false when no existing location
// matches; the caller then flags the objection for manual amendment.
func ApplyFieldReference(c *Contract, ref string, value interface{}) bool {
	parts := strings.Split(ref, ".")

	if section := sectionOf(c, parts[0]); section != nil {
		if len(parts) == 1 {
			return false
		}
		return applyPath(*section, parts[1:], value)
	}

	if len(parts) == 1 {
		for _, name := range payloadSections {
			section := sectionOf(c, name)
			if section == nil || *section == nil {
				continue
			}
			if _, ok := (*section)[parts[0]]; ok {
				(*section)[parts[0]] = value
				return true
			}
		}
		return applyScalar(c, parts[0], value)
	}
	return false
}

// LookupFieldReference reads the current value at the location named by ref,
// resolving it the same way ApplyFieldReference does.
func LookupFieldReference(c *Contract, ref string) (interface{}, bool) {
	parts := strings.Split(ref, ".")

	if section := sectionOf(c, parts[0]); section != nil {
		if len(parts) == 1 {
			return nil, false
		}
		return lookupPath(*section, parts[1:])
	}

	if len(parts) == 1 {
		for _, name := range payloadSections {
			section := sectionOf(c, name)
			if section == nil || *section == nil {
				continue
			}
			if v, ok := (*section)[parts[0]]; ok {
				return v, true
			}
		}
		return lookupScalar(c, parts[0])
	}
	return nil, false
}

func lookupPath(section Payload, path []string) (interface{}, bool) {
	if section == nil {
		return nil, false
	}
	current := map[string]interface{}(section)
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	v, ok := current[path[len(path)-1]]
	return v, ok
}

func lookupScalar(c *Contract, field string) (interface{}, bool) {
	switch field {
	case "special_clauses":
		return c.SpecialClauses, true
	case "start_date":
		if c.StartDate == nil {
			return nil, true
		}
		return c.StartDate.Format("2006-01-02"), true
	case "end_date":
		if c.EndDate == nil {
			return nil, true
		}
		return c.EndDate.Format("2006-01-02"), true
	}
	return nil, false
}

func sectionOf(c *Contract, name string) *Payload {
	switch name {
	case "landlord_data":
		return &c.LandlordData
	case "tenant_data":
		return &c.TenantData
	case "contract_terms":
		return &c.ContractTerms
	case "economic_terms":
		return &c.EconomicTerms
	}
	return nil
}

// applyPath walks the nested maps to the parent of the leaf and replaces the
// leaf only if it already exists.
func applyPath(section Payload, path []string, value interface{}) bool {
	if section == nil {
		return false
	}
	current := map[string]interface{}(section)
	for _, key := range path[:len(path)-1] {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return false
		}
		current = next
	}
	leaf := path[len(path)-1]
	if _, ok := current[leaf]; !ok {
		return false
	}
	current[leaf] = value
	return true
}

func applyScalar(c *Contract, field string, value interface{}) bool {
	switch field {
	case "special_clauses":
		clauses, ok := toStringSlice(value)
		if !ok {
			return false
		}
		c.SpecialClauses = clauses
		return true
	case "start_date":
		t, ok := toDate(value)
		if !ok {
			return false
		}
		c.StartDate = &t
		return true
	case "end_date":
		t, ok := toDate(value)
		if !ok {
			return false
		}
		c.EndDate = &t
		return true
	}
	return false
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []interface{}:
		out := make([]string, 0, len(s))
		for _, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, str)
		}
		return out, true
	}
	return nil, false
}

func toDate(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
