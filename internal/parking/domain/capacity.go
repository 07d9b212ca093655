package domain

// CapacityTable maps facility names to their number of spaces.
type CapacityTable map[string]int

var defaultCapacities = CapacityTable{
	"Green Day": 187,
	"GreenDay":  187,
	"Uni Wroc":  41,
}

// DefaultCapacities returns a copy of the built-in capacity table.
func DefaultCapacities() CapacityTable {
	out := make(CapacityTable, len(defaultCapacities))
	for name, capacity := range defaultCapacities {
		out[name] = capacity
	}
	return out
}

// Merge returns a copy of t with overrides applied.
func (t CapacityTable) Merge(overrides map[string]int) CapacityTable {
	out := make(CapacityTable, len(t)+len(overrides))
	for name, capacity := range t {
		out[name] = capacity
	}
	for name, capacity := range overrides {
		out[name] = capacity
	}
	return out
}

// MaxCapacity looks up name as given, then its display name.
// Unknown facilities have no capacity.
func (t CapacityTable) MaxCapacity(name string) (int, bool) {
	if capacity, ok := t[name]; ok && capacity > 0 {
		return capacity, true
	}
	if capacity, ok := t[NormalizeParkingName(name)]; ok && capacity > 0 {
		return capacity, true
	}
	return 0, false
}

// NormalizeParkingName maps feed identifiers to display names.
func NormalizeParkingName(name string) string {
	switch name {
	case "":
		return "Unknown"
	case "Bank_1":
		return "Uni Wroc"
	default:
		return name
	}
}
