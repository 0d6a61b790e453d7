package domain

import "fmt"

// Plan is a named resource tier.
type Plan string

const (
	PlanBasic      Plan = "basic"
	PlanBusiness   Plan = "business"
	PlanEnterprise Plan = "enterprise"
)

// ResourceProfile holds the container resource limits derived from a plan.
// Memory limits use runtime notation ("2g"); CPU limits are core fractions.
type ResourceProfile struct {
	MemoryLimit   string
	DBMemoryLimit string
	CPULimit      float64
	DBCPULimit    float64
}

var planProfiles = map[Plan]ResourceProfile{
	PlanBasic:      {MemoryLimit: "2g", DBMemoryLimit: "1g", CPULimit: 1.0, DBCPULimit: 0.5},
	PlanBusiness:   {MemoryLimit: "4g", DBMemoryLimit: "2g", CPULimit: 2.0, DBCPULimit: 1.0},
	PlanEnterprise: {MemoryLimit: "8g", DBMemoryLimit: "4g", CPULimit: 4.0, DBCPULimit: 2.0},
}

// Profile returns the resource limits for the plan. Unknown plans fall
// back to basic, matching how an operator-edited record degrades.
func (p Plan) Profile() ResourceProfile {
	if prof, ok := planProfiles[p]; ok {
		return prof
	}
	return planProfiles[PlanBasic]
}

// ParsePlan validates a plan name.
func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if _, ok := planProfiles[p]; !ok {
		return "", &ValidationError{Field: "plan", Reason: fmt.Sprintf("unknown plan %q", s)}
	}
	return p, nil
}
