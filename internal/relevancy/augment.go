package relevancy

import (
	"math/rand"
	"sort"
)

// AugmentNegatives selects additional negative example UIDs from a
// background pool when the adjudicated negatives are sparse. The target
// negative count is ratio * len(positives); the shortfall is drawn as a
// seeded permutation of the pool, so a fixed seed yields a fixed selection.
//
// Pool entries that are already positive or negative are skipped.
func AugmentNegatives(pool []string, positives, negatives map[string]struct{}, ratio float64, seed int64) []string {
	want := int(ratio * float64(len(positives)))
	short := want - len(negatives)
	if short <= 0 {
		return nil
	}

	eligible := make([]string, 0, len(pool))
	for _, uid := range pool {
		if _, ok := positives[uid]; ok {
			continue
		}
		if _, ok := negatives[uid]; ok {
			continue
		}
		eligible = append(eligible, uid)
	}
	// sort before shuffling so the result depends only on pool content
	sort.Strings(eligible)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})
	if short > len(eligible) {
		short = len(eligible)
	}
	return eligible[:short]
}
