package domain

import "slices"

// VisibleTo reports whether a participant-scoped soft-deletable record is
// visible to userID.
func VisibleTo(deleted bool, deletedFor []string, userID string) bool {
	if deleted {
		return false
	}
	return !slices.Contains(deletedFor, userID)
}

// DeletedByAll reports whether every party has soft-deleted the record.
func DeletedByAll(parties, deletedFor []string) bool {
	if len(parties) == 0 {
		return false
	}
	for _, p := range parties {
		if !slices.Contains(deletedFor, p) {
			return false
		}
	}
	return true
}

// addUnique appends id unless already present
func addUnique(set []string, id string) []string {
	if slices.Contains(set, id) {
		return set
	}
	return append(set, id)
}

// toggle adds id if absent, otherwise removes it. Reports whether id is now present.
func toggle(set []string, id string) ([]string, bool) {
	if i := slices.Index(set, id); i >= 0 {
		return slices.Delete(set, i, i+1), false
	}
	return append(set, id), true
}
