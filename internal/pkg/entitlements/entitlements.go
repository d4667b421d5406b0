package entitlements

import "strings"

type Plan string

const (
	PlanFree     Plan = "free"
	PlanPro      Plan = "pro"
	PlanBusiness Plan = "business"
)

// Normalize maps an arbitrary plan string to a known Plan, defaulting to free.
func Normalize(plan string) Plan {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(PlanPro):
		return PlanPro
	case string(PlanBusiness):
		return PlanBusiness
	default:
		return PlanFree
	}
}

// Rank orders plans so reconciliation can pick the best entitling one.
func Rank(plan Plan) int {
	switch plan {
	case PlanBusiness:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}

// MaxCourses returns how many published courses a plan allows.
func MaxCourses(plan Plan) int {
	switch plan {
	case PlanBusiness:
		return -1 // unlimited
	case PlanPro:
		return 25
	default:
		return 3
	}
}

// AllowsCustomDomain reports whether a plan may attach a custom domain.
func AllowsCustomDomain(plan Plan) bool {
	return plan == PlanPro || plan == PlanBusiness
}
