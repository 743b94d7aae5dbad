// pkg/ingest/reference.go
package ingest

import (
	"strings"
	"unicode"
)

// maxLocationEditDistance bounds the fuzzy match. Anything further from every
// canonical name than this is an unknown location.
const maxLocationEditDistance = 2

// ReferenceTable resolves raw state and district names to canonical ones.
// Lookup is exact after case and whitespace normalization first, then fuzzy
// by bounded edit distance. District lists are optional per state; a state
// with no district list accepts any normalized district name.
type ReferenceTable struct {
	states    map[string]string            // normalized -> canonical
	districts map[string]map[string]string // canonical state -> normalized district -> canonical
}

// NewReferenceTable builds a table from canonical state names and optional
// per-state district lists
func NewReferenceTable(states []string, districtsByState map[string][]string) *ReferenceTable {
	t := &ReferenceTable{
		states:    make(map[string]string, len(states)),
		districts: make(map[string]map[string]string, len(districtsByState)),
	}

	for _, s := range states {
		canonical := titleCase(s)
		t.states[normalizeKey(canonical)] = canonical
	}

	for state, districts := range districtsByState {
		canonicalState := titleCase(state)
		m := make(map[string]string, len(districts))
		for _, d := range districts {
			canonical := titleCase(d)
			m[normalizeKey(canonical)] = canonical
		}
		t.districts[canonicalState] = m
	}

	return t
}

// DefaultReferenceTable returns the table of Indian states and union
// territories. Districts are unconstrained; they are normalized but not
// checked against a list.
func DefaultReferenceTable() *ReferenceTable {
	return NewReferenceTable(indianStates, nil)
}

var indianStates = []string{
	"Andaman And Nicobar Islands",
	"Andhra Pradesh",
	"Arunachal Pradesh",
	"Assam",
	"Bihar",
	"Chandigarh",
	"Chhattisgarh",
	"Dadra And Nagar Haveli And Daman And Diu",
	"Delhi",
	"Goa",
	"Gujarat",
	"Haryana",
	"Himachal Pradesh",
	"Jammu And Kashmir",
	"Jharkhand",
	"Karnataka",
	"Kerala",
	"Ladakh",
	"Lakshadweep",
	"Madhya Pradesh",
	"Maharashtra",
	"Manipur",
	"Meghalaya",
	"Mizoram",
	"Nagaland",
	"Odisha",
	"Puducherry",
	"Punjab",
	"Rajasthan",
	"Sikkim",
	"Tamil Nadu",
	"Telangana",
	"Tripura",
	"Uttar Pradesh",
	"Uttarakhand",
	"West Bengal",
}

// CanonicalState resolves a raw state name. The second return is false when
// the name cannot be resolved within the edit-distance bound.
func (t *ReferenceTable) CanonicalState(raw string) (string, bool) {
	key := normalizeKey(raw)
	if key == "" {
		return "", false
	}

	if canonical, ok := t.states[key]; ok {
		return canonical, true
	}

	return fuzzyLookup(t.states, key)
}

// CanonicalDistrict resolves a raw district name within a canonical state.
// When the state carries no district list, the normalized name is accepted
// as-is.
func (t *ReferenceTable) CanonicalDistrict(state, raw string) (string, bool) {
	key := normalizeKey(raw)
	if key == "" {
		return "", false
	}

	districts, ok := t.districts[state]
	if !ok || len(districts) == 0 {
		return titleCase(raw), true
	}

	if canonical, ok := districts[key]; ok {
		return canonical, true
	}

	return fuzzyLookup(districts, key)
}

// fuzzyLookup returns the unique best match within the edit-distance bound.
// Ties are ambiguous and resolve to no match.
func fuzzyLookup(table map[string]string, key string) (string, bool) {
	best := maxLocationEditDistance + 1
	bestCanonical := ""
	tied := false

	for candidate, canonical := range table {
		d := editDistance(key, candidate, maxLocationEditDistance)
		if d < 0 {
			continue
		}
		switch {
		case d < best:
			best = d
			bestCanonical = canonical
			tied = false
		case d == best:
			tied = true
		}
	}

	if bestCanonical == "" || tied {
		return "", false
	}
	return bestCanonical, true
}

// editDistance computes the Levenshtein distance between a and b, returning
// -1 as soon as the distance is known to exceed bound
func editDistance(a, b string, bound int) int {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	diff := la - lb
	if diff < 0 {
		diff = -diff
	}
	if diff > bound {
		return -1
	}

	prev := make([]int, lb+1)
	cur := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}

	for i := 1; i <= la; i++ {
		cur[0] = i
		rowMin := cur[0]
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if cur[j] < rowMin {
				rowMin = cur[j]
			}
		}
		if rowMin > bound {
			return -1
		}
		prev, cur = cur, prev
	}

	if prev[lb] > bound {
		return -1
	}
	return prev[lb]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}

// normalizeKey lowercases and collapses whitespace for table lookup
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// titleCase trims, collapses whitespace, and capitalizes each word, matching
// how the sink stores location names
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
