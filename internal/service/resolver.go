package service

import (
	"fmt"
	"sort"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultMergeThreshold is the pairwise similarity above which two
	// candidates are considered the same real-world entity.
	DefaultMergeThreshold = 0.82

	nameWeight     = 0.7
	propertyWeight = 0.3
)

// MergeResult describes one resolved cluster: the canonical record and the
// raw ids folded into it. Ambiguous clusters carry contradictory ontology
// codes and are held for the sweep instead of merged blindly.
type MergeResult struct {
	Canonical domain.Entity `json:"canonical"`
	MergedIDs []string      `json:"merged_ids,omitempty"`
	Ambiguous bool          `json:"ambiguous,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// MultiSource reports whether the cluster combined at least two distinct
// provenance sources.
func (m *MergeResult) MultiSource() bool {
	return len(m.Canonical.DistinctSources()) >= 2
}

// EntityResolver deduplicates candidate records for one tier. Clustering is
// blocking + pairwise similarity with transitive merging: if A~B and B~C
// clear the threshold, A, B and C land in one cluster even when A~C does not.
type EntityResolver struct {
	threshold float64
	logger    *zap.Logger
}

func NewEntityResolver(threshold float64, logger *zap.Logger) *EntityResolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultMergeThreshold
	}
	return &EntityResolver{threshold: threshold, logger: logger}
}

// Resolve clusters the candidates and produces one MergeResult per cluster.
// The result is deterministic and idempotent: resolving the same candidate
// set twice yields the same canonical entities.
func (r *EntityResolver) Resolve(candidates []domain.Entity) []MergeResult {
	if len(candidates) == 0 {
		return nil
	}

	// Stable input order makes cluster membership reproducible.
	sorted := make([]domain.Entity, len(candidates))
	copy(sorted, candidates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	uf := newUnionFind(len(sorted))

	// Blocking: candidates only get pairwise-compared when they share a
	// normalized name or an ontology code.
	blocks := make(map[string][]int)
	for i, e := range sorted {
		if name := e.NormalizedName(); name != "" {
			key := "n:" + name
			blocks[key] = append(blocks[key], i)
		}
		if e.OntologyMatch != nil && e.OntologyMatch.Code != "" {
			key := "o:" + e.OntologyMatch.System + "/" + e.OntologyMatch.Code
			blocks[key] = append(blocks[key], i)
		}
	}

	for _, members := range blocks {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				i, j := members[a], members[b]
				if uf.find(i) == uf.find(j) {
					continue
				}
				if r.similarity(&sorted[i], &sorted[j]) >= r.threshold {
					uf.union(i, j)
				}
			}
		}
	}

	clusters := make(map[int][]int)
	for i := range sorted {
		root := uf.find(i)
		clusters[root] = append(clusters[root], i)
	}

	roots := make([]int, 0, len(clusters))
	for root := range clusters {
		roots = append(roots, root)
	}
	sort.Ints(roots)

	results := make([]MergeResult, 0, len(roots))
	for _, root := range roots {
		members := make([]domain.Entity, 0, len(clusters[root]))
		for _, idx := range clusters[root] {
			members = append(members, sorted[idx])
		}
		results = append(results, r.merge(members))
	}

	return results
}

// similarity combines name similarity with weighted Jaccard property overlap.
// A shared ontology code counts as a full name match.
func (r *EntityResolver) similarity(a, b *domain.Entity) float64 {
	nameSim := levenshteinRatio(a.NormalizedName(), b.NormalizedName())
	if a.OntologyMatch != nil && b.OntologyMatch != nil &&
		a.OntologyMatch.Code == b.OntologyMatch.Code &&
		a.OntologyMatch.System == b.OntologyMatch.System {
		nameSim = 1
	}
	return nameWeight*nameSim + propertyWeight*propertySimilarity(a.Properties, b.Properties)
}

// propertySimilarity is the mean of key-set Jaccard and value agreement on
// the shared keys. Empty maps and disjoint key sets do not count against a
// pair: absence of evidence is not a conflict.
func propertySimilarity(a, b map[string]domain.PropertyValue) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	union := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		union[k] = struct{}{}
	}
	for k := range b {
		union[k] = struct{}{}
	}

	shared, agreeing := 0, 0
	for k, va := range a {
		vb, ok := b[k]
		if !ok {
			continue
		}
		shared++
		if va.Equal(vb) {
			agreeing++
		}
	}

	keyJaccard := float64(shared) / float64(len(union))
	valueAgreement := 1.0
	if shared > 0 {
		valueAgreement = float64(agreeing) / float64(shared)
	}

	return 0.5*keyJaccard + 0.5*valueAgreement
}

// merge folds a cluster into its canonical record. The highest-confidence
// member supplies identity; confidence combines via noisy-OR; property
// conflicts surface under the _conflicts key rather than being dropped.
func (r *EntityResolver) merge(members []domain.Entity) MergeResult {
	// Highest confidence first; id breaks ties so the canonical id is stable.
	sort.Slice(members, func(i, j int) bool {
		if members[i].Confidence != members[j].Confidence {
			return members[i].Confidence > members[j].Confidence
		}
		return members[i].ID < members[j].ID
	})

	best := members[0]
	if len(members) == 1 {
		return MergeResult{Canonical: best}
	}

	canonical := domain.Entity{
		ID:              best.ID,
		Name:            best.Name,
		Type:            best.Type,
		Category:        best.Category,
		Tier:            best.Tier,
		Embedding:       best.Embedding,
		FirstObservedAt: best.FirstObservedAt,
		LastObservedAt:  best.LastObservedAt,
		CreatedAt:       best.CreatedAt,
	}

	confidences := make([]float64, 0, len(members))
	mergedIDs := make([]string, 0, len(members)-1)
	codes := make(map[string]struct{})

	for _, m := range members {
		confidences = append(confidences, m.Confidence)
		canonical.ObservationCount += m.ObservationCount
		canonical.Sources = append(canonical.Sources, m.Sources...)

		if m.ID != canonical.ID {
			mergedIDs = append(mergedIDs, m.ID)
		}
		if m.OntologyMatch != nil && m.OntologyMatch.Code != "" {
			codes[m.OntologyMatch.System+"/"+m.OntologyMatch.Code] = struct{}{}
			if canonical.OntologyMatch == nil || m.OntologyMatch.Confidence > canonical.OntologyMatch.Confidence {
				match := *m.OntologyMatch
				canonical.OntologyMatch = &match
			}
		}
		if m.FirstObservedAt.Before(canonical.FirstObservedAt) {
			canonical.FirstObservedAt = m.FirstObservedAt
		}
		if m.LastObservedAt.After(canonical.LastObservedAt) {
			canonical.LastObservedAt = m.LastObservedAt
		}
		if m.LastContradictedAt != nil {
			if canonical.LastContradictedAt == nil || m.LastContradictedAt.After(*canonical.LastContradictedAt) {
				at := *m.LastContradictedAt
				canonical.LastContradictedAt = &at
			}
		}
	}

	canonical.Confidence = CombineConfidence(confidences...)
	canonical.Sources = canonical.DistinctSources()
	canonical.Properties = mergeProperties(members)
	sort.Strings(mergedIDs)

	result := MergeResult{Canonical: canonical, MergedIDs: mergedIDs}

	if len(codes) > 1 {
		memberIDs := make([]string, 0, len(members))
		for _, m := range members {
			memberIDs = append(memberIDs, m.ID)
		}
		aerr := &domain.AmbiguousMergeError{
			MemberIDs: memberIDs,
			Reason:    fmt.Sprintf("cluster carries %d distinct ontology codes", len(codes)),
		}
		result.Ambiguous = true
		result.Canonical.Ambiguous = true
		result.Reason = aerr.Reason
		if r.logger != nil {
			r.logger.Warn("ambiguous merge held",
				zap.String("canonical_id", canonical.ID),
				zap.Int("members", len(members)),
				zap.Error(aerr))
		}
	}

	return result
}

// mergeProperties unions member properties. The highest-confidence member
// wins each key; losing distinct values are preserved under _conflicts as a
// tagged list of (key, values...) entries so the conflict stays visible.
func mergeProperties(members []domain.Entity) map[string]domain.PropertyValue {
	merged := make(map[string]domain.PropertyValue)
	conflicting := make(map[string][]domain.PropertyValue)

	for _, m := range members {
		keys := make([]string, 0, len(m.Properties))
		for k := range m.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			if k == domain.ConflictsKey {
				// A member that is itself the product of an earlier merge
				// carries recorded conflicts; re-open them so this merge
				// cannot drop them.
				foldConflicts(conflicting, m.Properties[k])
				continue
			}
			v := m.Properties[k]
			existing, ok := merged[k]
			if !ok {
				merged[k] = v
				continue
			}
			if existing.Equal(v) {
				continue
			}
			if len(conflicting[k]) == 0 {
				conflicting[k] = append(conflicting[k], existing)
			}
			seen := false
			for _, prev := range conflicting[k] {
				if prev.Equal(v) {
					seen = true
					break
				}
			}
			if !seen {
				conflicting[k] = append(conflicting[k], v)
			}
		}
	}

	if len(conflicting) > 0 {
		keys := make([]string, 0, len(conflicting))
		for k := range conflicting {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		entries := make([]domain.PropertyValue, 0, len(keys))
		for _, k := range keys {
			entry := []domain.PropertyValue{domain.StringValue(k)}
			entry = append(entry, conflicting[k]...)
			entries = append(entries, domain.ListValue(entry...))
		}
		merged[domain.ConflictsKey] = domain.ListValue(entries...)
	}

	if len(merged) == 0 {
		return nil
	}
	return merged
}

// foldConflicts unpacks a recorded _conflicts value, a list of
// (key, values...) entries, back into the working conflict map, deduplicated.
func foldConflicts(conflicting map[string][]domain.PropertyValue, recorded domain.PropertyValue) {
	for _, entry := range recorded.List {
		if entry.Kind != domain.KindList || len(entry.List) < 2 {
			continue
		}
		key := entry.List[0].String
		for _, v := range entry.List[1:] {
			seen := false
			for _, prev := range conflicting[key] {
				if prev.Equal(v) {
					seen = true
					break
				}
			}
			if !seen {
				conflicting[key] = append(conflicting[key], v)
			}
		}
	}
}

// unionFind is a plain disjoint-set forest with path halving.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	// Smaller root wins so cluster roots are deterministic.
	if rj < ri {
		ri, rj = rj, ri
	}
	u.parent[rj] = ri
}

// levenshteinRatio is 1 - editDistance/maxLen, 1.0 for two empty strings.
func levenshteinRatio(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(b)]
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
