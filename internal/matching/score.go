package matching

import (
	"github.com/viviendahub/go-viviendahub/pkg/properties"
)

// AutoApplyThreshold is the minimum score an automatic submission needs.
const AutoApplyThreshold = 70

// MaxAutoAppliesPerDay caps automatic submissions per tenant per day.
const MaxAutoAppliesPerDay = 3

// Score computes the deterministic 0-100 compatibility of a request against a
// property. All ratio comparisons use integer cross-multiplication so the
// result never depends on float rounding.
func Score(r *Request, p *properties.Property) int {
	score := incomeScore(r.MonthlyIncomeCents, p.MonthlyRentCents)
	score += documentationScore(r)
	score += petScore(r.HasPets, p.PetsAllowed)
	score += smokingScore(r.IsSmoker, p.SmokingAllowed)
	score += durationScore(r.LeaseDurationMonths)
	score += messageScore(r.TenantMessage)

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// incomeScore awards up to 30 points by income/rent ratio steps
// (>=4, >=3, >=2.5, >=2, below).
func incomeScore(incomeCents, rentCents int64) int {
	if rentCents <= 0 {
		return 30
	}
	switch {
	case incomeCents >= 4*rentCents:
		return 30
	case incomeCents >= 3*rentCents:
		return 25
	case 2*incomeCents >= 5*rentCents:
		return 15
	case incomeCents >= 2*rentCents:
		return 10
	default:
		return 5
	}
}

// documentationScore awards up to 25 points for the documentation bundle.
func documentationScore(r *Request) int {
	score := 0
	if r.HasRentalReferences {
		score += 10
	}
	if r.HasEmploymentProof {
		score += 10
	}
	if r.HasCreditCheck {
		score += 5
	}
	return score
}

func petScore(hasPets, allowed bool) int {
	switch {
	case hasPets && allowed:
		return 15
	case !hasPets:
		return 10
	default:
		return 0
	}
}

func smokingScore(smoker, allowed bool) int {
	switch {
	case smoker && allowed:
		return 10
	case !smoker:
		return 5
	default:
		return 0
	}
}

// durationScore prefers mid-length leases: full points inside [6,24] months,
// half for longer commitments of a year or more, nothing below six months.
func durationScore(months int) int {
	switch {
	case months >= 6 && months <= 24:
		return 10
	case months >= 12:
		return 5
	default:
		return 0
	}
}

func messageScore(msg string) int {
	switch {
	case len(msg) >= 200:
		return 10
	case len(msg) >= 100:
		return 5
	default:
		return 0
	}
}
