package labels

import (
	"slices"
	"sort"
)

// Vocabulary is a sorted set of distinct label names with stable indices.
type Vocabulary struct {
	names []string
	index map[string]int
}

// NewVocabulary sorts and deduplicates names.
func NewVocabulary(names []string) *Vocabulary {
	sorted := slices.Clone(names)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	return OrderedVocabulary(sorted)
}

// OrderedVocabulary keeps names in the given order, as loaded from a model bundle.
func OrderedVocabulary(names []string) *Vocabulary {
	v := &Vocabulary{names: slices.Clone(names), index: make(map[string]int, len(names))}
	for i, n := range v.names {
		if _, seen := v.index[n]; !seen {
			v.index[n] = i
		}
	}
	return v
}

// Index returns the index of name.
func (v *Vocabulary) Index(name string) (int, bool) {
	if v == nil {
		return 0, false
	}
	i, ok := v.index[name]
	return i, ok
}

// Name returns the label at index i.
func (v *Vocabulary) Name(i int) (string, bool) {
	if v == nil || i < 0 || i >= len(v.names) {
		return "", false
	}
	return v.names[i], true
}

// Names returns a copy of the labels in index order.
func (v *Vocabulary) Names() []string {
	if v == nil {
		return nil
	}
	return slices.Clone(v.names)
}

// Len returns the number of labels.
func (v *Vocabulary) Len() int {
	if v == nil {
		return 0
	}
	return len(v.names)
}
