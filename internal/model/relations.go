package model

// RelationSet is the domain view of a followers/following field.
//
// Older documents stored these fields as a bare number. Adapters decode that
// shape as Legacy=true with no IDs; the count it carried is meaningless and
// is never reported. A non-legacy set never contains duplicates.
type RelationSet struct {
	IDs    []string
	Legacy bool
}

// NewRelationSet builds a set from ids, dropping empties and duplicates while
// keeping first-seen order.
func NewRelationSet(ids ...string) RelationSet {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return RelationSet{IDs: out}
}

// LegacyRelationSet is the decoded form of a stored bare count.
func LegacyRelationSet() RelationSet {
	return RelationSet{Legacy: true}
}

// Contains reports whether id is a member.
func (s RelationSet) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, m := range s.IDs {
		if m == id {
			return true
		}
	}
	return false
}

// Len is the number of members. Legacy sets are always empty.
func (s RelationSet) Len() int {
	if s.Legacy {
		return 0
	}
	return len(s.IDs)
}

// Normalized returns the migrated form of s: legacy sets become empty sets.
func (s RelationSet) Normalized() RelationSet {
	if s.Legacy {
		return RelationSet{IDs: []string{}}
	}
	return NewRelationSet(s.IDs...)
}
