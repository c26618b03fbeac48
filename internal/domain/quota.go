package domain

// QuotaPolicy holds the configured base budget per kind. The effective budget
// for a session scales linearly with its override level:
// budget = base * (1 + override_level).
type QuotaPolicy struct {
	Base map[Kind]int
}

// Budget returns the effective budget for a kind at the given override level.
func (p QuotaPolicy) Budget(kind Kind, overrideLevel int) int {
	if overrideLevel < 0 {
		overrideLevel = 0
	}
	return p.Base[kind] * (1 + overrideLevel)
}

// Remaining returns the units left, clamped at zero.
func (p QuotaPolicy) Remaining(kind Kind, used, overrideLevel int) int {
	r := p.Budget(kind, overrideLevel) - used
	if r < 0 {
		return 0
	}
	return r
}

// Admits reports whether one more unit fits the effective budget.
func (p QuotaPolicy) Admits(kind Kind, used, overrideLevel int) bool {
	return used+1 <= p.Budget(kind, overrideLevel)
}
