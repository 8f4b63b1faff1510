package classifier

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/store"
)

// ClassifyStore applies model to every descriptor in the store and returns
// a global ranking, descending by score with ties broken by UID ascending.
// The corpus is pulled in batches of batchSize and scored in parallel with
// the given fan-out.
func ClassifyStore(ctx context.Context, model *Model, st store.DescriptorStore, batchSize, concurrency int) (models.Ranking, error) {
	uids, err := st.UIDs(ctx)
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = 256
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var mu sync.Mutex
	ranking := make(models.Ranking, 0, len(uids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for start := 0; start < len(uids); start += batchSize {
		end := start + batchSize
		if end > len(uids) {
			end = len(uids)
		}
		batch := uids[start:end]
		g.Go(func() error {
			vectors, _, err := st.GetMany(ctx, batch)
			if err != nil {
				return err
			}
			scored := make(models.Ranking, 0, len(batch))
			for _, uid := range batch {
				vec, ok := vectors[uid]
				if !ok {
					continue
				}
				score, err := model.Score(vec)
				if err != nil {
					return err
				}
				scored = append(scored, models.RankedItem{UID: uid, Score: score})
			}
			mu.Lock()
			ranking = append(ranking, scored...)
			mu.Unlock()
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
