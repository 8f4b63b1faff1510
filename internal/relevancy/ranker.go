// Package relevancy provides the per-session relevancy ranker.
//
// A Ranker is built fresh from the session's current example set, used for
// one ranking pass over the candidate pool, and discarded. It holds no
// hidden state: the score of a candidate is a pure function of the positive
// vectors, the negative vectors, and the candidate's own vector, so
// re-scoring with the same inputs always yields the same ranking.
package relevancy

import (
	"context"
	"math"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/hayate/erabu/internal/models"
)

// SimilarityFunc scores the similarity of two vectors; higher is more alike.
type SimilarityFunc func(a, b []float32) float64

// RBFSimilarity is the default similarity: a Gaussian kernel over squared
// euclidean distance, with gamma fixed at 1.
func RBFSimilarity(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Exp(-sum)
}

// Options configures ranker construction.
type Options struct {
	// Similarity overrides the scoring kernel; nil means RBFSimilarity.
	Similarity SimilarityFunc
	// Concurrency bounds the scoring fan-out; <=0 means GOMAXPROCS.
	Concurrency int
}

// Ranker scores candidates against a fixed positive/negative example set.
type Ranker struct {
	positives  [][]float32
	negatives  [][]float32
	similarity SimilarityFunc
	fanout     int
}

// New builds a ranker from the example vectors. Positives must be
// non-empty; negatives may be empty (augmentation happens upstream).
func New(positives, negatives map[string][]float32, opts Options) (*Ranker, error) {
	if len(positives) == 0 {
		return nil, models.ErrInsufficientData
	}
	sim := opts.Similarity
	if sim == nil {
		sim = RBFSimilarity
	}
	fanout := opts.Concurrency
	if fanout <= 0 {
		fanout = runtime.GOMAXPROCS(0)
	}
	return &Ranker{
		positives:  collectVectors(positives),
		negatives:  collectVectors(negatives),
		similarity: sim,
		fanout:     fanout,
	}, nil
}

// Score returns the relevance of a single candidate vector: mean similarity
// to the positives minus mean similarity to the negatives.
func (r *Ranker) Score(vec []float32) float64 {
	score := meanSimilarity(r.similarity, r.positives, vec)
	if len(r.negatives) > 0 {
		score -= meanSimilarity(r.similarity, r.negatives, vec)
	}
	return score
}

// Rank scores every candidate and returns a ranking in descending score
// order, ties broken by UID ascending. Candidate scoring is independent and
// fans out over the configured number of goroutines.
func (r *Ranker) Rank(ctx context.Context, candidates map[string][]float32) (models.Ranking, error) {
	uids := sortedUIDs(candidates)
	ranking := make(models.Ranking, len(uids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.fanout)
	for i, uid := range uids {
		i, uid := i, uid
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			ranking[i] = models.RankedItem{UID: uid, Score: r.Score(candidates[uid])}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].Score != ranking[j].Score {
			return ranking[i].Score > ranking[j].Score
		}
		return ranking[i].UID < ranking[j].UID
	})
	return ranking, nil
}

func meanSimilarity(sim SimilarityFunc, examples [][]float32, vec []float32) float64 {
	var sum float64
	for _, ex := range examples {
		sum += sim(ex, vec)
	}
	return sum / float64(len(examples))
}

// collectVectors flattens a UID->vector map into a slice with a stable
// (UID ascending) order, keeping scoring deterministic.
func collectVectors(m map[string][]float32) [][]float32 {
	uids := sortedUIDs(m)
	out := make([][]float32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, m[uid])
	}
	return out
}

func sortedUIDs(m map[string][]float32) []string {
	uids := make([]string, 0, len(m))
	for uid := range m {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}
