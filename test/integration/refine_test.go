// Package integration provides end-to-end tests (requires real storage).
package integration

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hayate/erabu/internal/config"
	"github.com/hayate/erabu/internal/models"
	"github.com/hayate/erabu/internal/neighbor"
	"github.com/hayate/erabu/internal/session"
	"github.com/hayate/erabu/internal/store"
)

func encodeVector(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(f))
	}
	return out
}

// seedCorpus writes two 8D clusters the way the external population
// pipeline would: cluster A around (1,...,1), cluster B around (-1,...,-1).
func seedCorpus(t *testing.T, path string, perCluster int) (clusterA, clusterB []string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := db.Exec(`CREATE TABLE descriptors (uid TEXT PRIMARY KEY, vector BLOB NOT NULL)`); err != nil {
		t.Fatal(err)
	}

	rng := rand.New(rand.NewSource(1))
	insert := func(uid string, center float32) {
		vec := make([]float32, 8)
		for i := range vec {
			vec[i] = center + float32(rng.NormFloat64())*0.1
		}
		if _, err := db.Exec(`INSERT INTO descriptors (uid, vector) VALUES (?, ?)`, uid, encodeVector(vec)); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < perCluster; i++ {
		uidA := "a" + string(rune('0'+i))
		uidB := "b" + string(rune('0'+i))
		insert(uidA, 1)
		insert(uidB, -1)
		clusterA = append(clusterA, uidA)
		clusterB = append(clusterB, uidB)
	}
	return clusterA, clusterB
}

func TestIntegration_RefinementLoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "descriptors.db")
	clusterA, clusterB := seedCorpus(t, dbPath, 8)

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Store.DatabasePath = dbPath
	cfg.Neighbor.BitLength = 8
	cfg.Session.PositiveSeedNeighbors = 5

	st, err := store.New(cfg.Store.Backend, store.Options{
		DatabasePath: cfg.Store.DatabasePath,
		ReadOnly:     cfg.Store.ReadOnlyOrDefault(),
		BatchSize:    cfg.Store.BatchSize,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	ix, err := neighbor.New(st, neighbor.Options{
		Metric:         neighbor.MetricEuclidean,
		BitLength:      cfg.Neighbor.BitLength,
		RandomSeed:     cfg.Neighbor.RandomSeed,
		UseBucketTable: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := ix.Build(ctx); err != nil {
		t.Fatal(err)
	}

	manager := session.NewManager(st, ix, cfg, zap.NewNop())

	info, err := manager.Create(ctx, clusterA[:2])
	if err != nil {
		t.Fatal(err)
	}
	if info.CandidatePoolSize < 2 {
		t.Fatalf("pool not seeded: %d", info.CandidatePoolSize)
	}

	if _, err := manager.Adjudicate(ctx, info.ID, models.AdjudicationInput{
		AddNegative: clusterB[:2],
	}); err != nil {
		t.Fatal(err)
	}

	if _, err := manager.Refine(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	page, err := manager.Results(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total == 0 {
		t.Fatal("refine produced no results")
	}
	// cluster-A members should dominate the top of the ranking
	if page.Results[0].UID[0] != 'a' {
		t.Errorf("top refine result %s is not from the positive cluster", page.Results[0].UID)
	}

	if _, err := manager.Classify(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
	page, err = manager.Results(ctx, info.ID, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 16 {
		t.Fatalf("classify should rank the whole corpus, got %d", page.Total)
	}
	top, bottom := page.Results[0], page.Results[len(page.Results)-1]
	if top.UID[0] != 'a' || bottom.UID[0] != 'b' {
		t.Errorf("classify ordering wrong: top %s, bottom %s", top.UID, bottom.UID)
	}

	if err := manager.Delete(ctx, info.ID); err != nil {
		t.Fatal(err)
	}
}
