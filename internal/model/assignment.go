package model

import (
	"slices"
	"strconv"
)

// PractitionerAssignments maps an appointment type id to the practitioners
// allowed to perform it. Values are sets: sorted, without duplicates.
type PractitionerAssignments map[int64][]int64

func (a PractitionerAssignments) Clone() PractitionerAssignments {
	if a == nil {
		return nil
	}
	out := make(PractitionerAssignments, len(a))
	for k, v := range a {
		out[k] = slices.Clone(v)
	}
	return out
}

// Normalize returns a copy with every value sorted and deduplicated.
func (a PractitionerAssignments) Normalize() PractitionerAssignments {
	if a == nil {
		return nil
	}
	out := make(PractitionerAssignments, len(a))
	for k, v := range a {
		out[k] = NormalizeIDs(v)
	}
	return out
}

// ByPractitioner inverts the map into practitioner id -> sorted type ids.
func (a PractitionerAssignments) ByPractitioner() map[int64][]int64 {
	out := make(map[int64][]int64)
	for typeID, practitioners := range a {
		for _, pid := range practitioners {
			out[pid] = append(out[pid], typeID)
		}
	}
	for pid, types := range out {
		out[pid] = NormalizeIDs(types)
	}
	return out
}

// NormalizeIDs returns a sorted copy of ids without duplicates. The result is
// never nil so it encodes as an empty JSON array.
func NormalizeIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	copy(out, ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
