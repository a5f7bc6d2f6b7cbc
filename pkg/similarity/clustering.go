// Package similarity deduplicates near-identical observations in search
// results via Jaccard similarity over extracted terms.
package similarity

import (
	"path"
	"strings"

	"github.com/enzo-wego/claude-mem/pkg/models"
)

// stopWords are excluded from term extraction.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "must": true, "shall": true,
	"this": true, "that": true, "these": true, "those": true,
	"and": true, "or": true, "but": true, "if": true, "then": true,
	"for": true, "from": true, "with": true, "about": true, "into": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "by": true,
	"it": true, "its": true, "which": true, "who": true, "what": true,
	"when": true, "where": true, "how": true, "why": true,
}

// ClusterObservations collapses similar observations into one representative
// per cluster. Input order is preference order: the first member of each
// cluster is kept, so callers pass their best-ranked (or newest) first.
func ClusterObservations(observations []*models.Observation, threshold float64) []*models.Observation {
	if len(observations) <= 1 {
		return observations
	}

	termSets := make([]map[string]bool, len(observations))
	for i, obs := range observations {
		termSets[i] = ExtractObservationTerms(obs)
	}

	absorbed := make([]bool, len(observations))
	result := make([]*models.Observation, 0, len(observations))

	for i := range observations {
		if absorbed[i] {
			continue
		}
		result = append(result, observations[i])
		for j := i + 1; j < len(observations); j++ {
			if absorbed[j] {
				continue
			}
			if JaccardSimilarity(termSets[i], termSets[j]) >= threshold {
				absorbed[j] = true
			}
		}
	}

	return result
}

// ExtractObservationTerms builds the term set an observation is compared
// by: tokens from title, narrative, and facts, plus the base names of any
// files it touched.
func ExtractObservationTerms(obs *models.Observation) map[string]bool {
	terms := make(map[string]bool)

	addTerms(terms, obs.Title.String)
	addTerms(terms, obs.Narrative.String)
	for _, fact := range obs.Facts {
		addTerms(terms, fact)
	}

	for _, file := range obs.FilesRead {
		terms[strings.ToLower(path.Base(file))] = true
	}
	for _, file := range obs.FilesModified {
		terms[strings.ToLower(path.Base(file))] = true
	}

	return terms
}

// addTerms tokenizes on non-alphanumeric boundaries and keeps words of at
// least three characters that are not stop words.
func addTerms(terms map[string]bool, text string) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
	for _, word := range words {
		if len(word) >= 3 && !stopWords[word] {
			terms[word] = true
		}
	}
}

// JaccardSimilarity returns |intersection| / |union| of two term sets,
// between 0 (disjoint) and 1 (identical). Two empty sets are identical.
func JaccardSimilarity(set1, set2 map[string]bool) float64 {
	if len(set1) == 0 && len(set2) == 0 {
		return 1.0
	}
	if len(set1) == 0 || len(set2) == 0 {
		return 0.0
	}

	intersection := 0
	for term := range set1 {
		if set2[term] {
			intersection++
		}
	}

	union := len(set1) + len(set2) - intersection
	return float64(intersection) / float64(union)
}
