// README: Candidate filter: free drivers with a known position, in a reproducible order.
package matching

import (
	"sort"

	"kamuit/internal/modules/driver"
	"kamuit/internal/types"
)

// FilterCandidates keeps drivers that have a position and are not in busy,
// ordered by user id so a fixed snapshot always yields the same slice.
func FilterCandidates(profiles []driver.Profile, busy map[types.ID]struct{}) []driver.Profile {
	out := make([]driver.Profile, 0, len(profiles))
	for _, p := range profiles {
		if !p.HasPosition() {
			continue
		}
		if _, ok := busy[p.UserID]; ok {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
