package sync

import "sort"

// diffUIDs returns the UIDs present on the server but not yet
// mirrored, sorted ascending so ingestion order is deterministic
// within a run regardless of input order.
func diffUIDs(server, existing []uint32) []uint32 {
	known := make(map[uint32]struct{}, len(existing))
	for _, uid := range existing {
		known[uid] = struct{}{}
	}

	var fresh []uint32
	for _, uid := range server {
		if _, ok := known[uid]; !ok {
			fresh = append(fresh, uid)
			known[uid] = struct{}{}
		}
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i] < fresh[j] })
	return fresh
}
