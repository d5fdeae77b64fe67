package deploy

import (
	"slices"

	"github.com/artpar/trellis/internal/core/environment"
)

// OrderContracts returns the built package names with those listed in the
// environment's contracts first, in declaration order, followed by the rest
// in build order. Configured contracts that were not built are left out.
func OrderContracts(built []string, configured []environment.Contract) []string {
	ordered := make([]string, 0, len(built))
	listed := make(map[string]bool, len(configured))

	for _, c := range configured {
		listed[c.Name] = true
		if slices.Contains(built, c.Name) && !slices.Contains(ordered, c.Name) {
			ordered = append(ordered, c.Name)
		}
	}
	for _, name := range built {
		if !listed[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}
