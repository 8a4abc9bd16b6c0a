package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/datasource"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/recall"
	"github.com/rushteam/shoprec/store"
)

func shoeSnapshot() datasource.Snapshot {
	return datasource.Snapshot{
		Products: []core.Product{
			{ID: "A", Name: "red shoe", Price: 50},
			{ID: "B", Name: "red sandal", Price: 40},
			{ID: "C", Name: "blue laptop", Price: 900},
		},
	}
}

func shopSnapshot() datasource.Snapshot {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return datasource.Snapshot{
		Products: []core.Product{
			{ID: "A", Name: "red shoe", Price: 50, Stock: 4},
			{ID: "B", Name: "red sandal", Price: 40, Stock: 2},
			{ID: "C", Name: "blue laptop", Price: 900, Stock: 1},
			{ID: "D", Name: "red shoe lace", Price: 5, Stock: 0},
		},
		Carts: []datasource.Cart{
			{ID: "c1", UserID: "u1", Items: []datasource.LineItem{{ProductID: "A", Quantity: 1}}},
			{ID: "c2", UserID: "u2", Items: []datasource.LineItem{{ProductID: "A", Quantity: 1}, {ProductID: "D", Quantity: 2}}},
		},
		Orders: []datasource.Order{
			{ID: "o1", UserID: "u2", Status: "delivered", CreatedAt: t0, Items: []datasource.LineItem{{ProductID: "B", Quantity: 1}}},
			{ID: "o2", UserID: "u3", Status: "delivered", CreatedAt: t0.Add(time.Hour), Items: []datasource.LineItem{{ProductID: "C", Quantity: 1}}},
			{ID: "o3", UserID: "u1", Status: "cancelled", CreatedAt: t0.Add(2 * time.Hour), Items: []datasource.LineItem{{ProductID: "C", Quantity: 3}}},
		},
	}
}

func trained(t *testing.T, src core.DataSource, opts ...Option) *Engine {
	t.Helper()
	e := New(src, opts...)
	if err := e.Train(context.Background()); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	return e
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	return out
}

func recID(r core.Recommendation) string { return r.ProductID }
func simID(s core.SimilarProduct) string { return s.ProductID }

func TestEngine_NotReady(t *testing.T) {
	e := New(datasource.NewMemory(shopSnapshot()))
	ctx := context.Background()

	if e.IsTrained() {
		t.Fatal("IsTrained() = true before training")
	}
	if _, err := e.Recommend(ctx, "u1", 5); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("Recommend() error = %v, want ErrNotReady", err)
	}
	if _, err := e.SimilarProducts(ctx, "A", 5); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("SimilarProducts() error = %v, want ErrNotReady", err)
	}
	if _, err := e.PopularProducts(ctx, 5); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("PopularProducts() error = %v, want ErrNotReady", err)
	}
	acc, err := e.EvaluateAccuracy(ctx)
	if acc != 0 || !errors.Is(err, core.ErrNotReady) {
		t.Errorf("EvaluateAccuracy() = %v, %v; want 0, ErrNotReady", acc, err)
	}
}

func TestEngine_ShoeScenario(t *testing.T) {
	e := trained(t, datasource.NewMemory(shoeSnapshot()))
	ctx := context.Background()

	st := e.Status()
	if st.CollaborativeEnabled || st.Products != 3 || st.Users != 0 || st.Version == "" {
		t.Errorf("Status() = %+v", st)
	}

	got, err := e.SimilarProducts(ctx, "A", 1)
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}
	if want := []string{"B"}; !reflect.DeepEqual(ids(got, simID), want) {
		t.Errorf("SimilarProducts(A, 1) = %v, want %v", got, want)
	}

	for _, id := range []string{"A", "B", "C"} {
		all, err := e.SimilarProducts(ctx, id, 10)
		if err != nil {
			t.Fatalf("SimilarProducts(%s) error = %v", id, err)
		}
		for _, s := range all {
			if s.ProductID == id {
				t.Errorf("SimilarProducts(%s) returned itself", id)
			}
		}
	}

	if _, err := e.SimilarProducts(ctx, "Z", 5); !errors.Is(err, core.ErrUnknownProduct) {
		t.Errorf("SimilarProducts(Z) error = %v, want ErrUnknownProduct", err)
	}
}

func TestEngine_NoHistoryUserGetsPopularity(t *testing.T) {
	e := trained(t, datasource.NewMemory(shopSnapshot()))
	ctx := context.Background()

	recs, err := e.Recommend(ctx, "stranger", 3)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	popular, err := e.PopularProducts(ctx, 3)
	if err != nil {
		t.Fatalf("PopularProducts() error = %v", err)
	}
	if len(recs) != 3 || len(recs) != len(popular) {
		t.Fatalf("Recommend() = %+v, PopularProducts() = %+v", recs, popular)
	}
	for i := range recs {
		if recs[i].ProductID != popular[i].ProductID || recs[i].Score != popular[i].Score {
			t.Errorf("rank %d: recommend %+v, popular %+v", i, recs[i], popular[i])
		}
	}
	// A: 2 carts; B: 1 order; C: 1 order (the cancelled one is ignored); D: 1 cart
	if want := []string{"B", "C", "A"}; !reflect.DeepEqual(ids(popular, recID), want) {
		t.Errorf("PopularProducts() = %v, want %v", ids(popular, recID), want)
	}
}

func TestEngine_RecommendExcludesOwned(t *testing.T) {
	e := trained(t, datasource.NewMemory(shopSnapshot()))
	recs, err := e.Recommend(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if len(recs) == 0 {
		t.Fatal("Recommend(u1) returned nothing")
	}
	for i, r := range recs {
		if r.ProductID == "A" {
			t.Errorf("u1 already has A in the cart, got %+v", recs)
		}
		if i > 0 && recs[i-1].Score < r.Score {
			t.Errorf("results not sorted: %+v", recs)
		}
	}
}

func TestEngine_CachedResultsAreStable(t *testing.T) {
	mem := store.NewMemoryStore()
	c := cache.New(mem)
	defer c.Close()
	src := datasource.NewMemory(shopSnapshot())
	e := trained(t, src, WithCache(c))
	ctx := context.Background()

	first, err := e.Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if mem.Len() == 0 {
		t.Fatal("result was not written to the cache")
	}
	second, err := e.Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated Recommend() differs:\n%+v\n%+v", first, second)
	}

	first[0].ProductID = "mutated"
	third, _ := e.Recommend(ctx, "u1", 5)
	if third[0].ProductID == "mutated" {
		t.Error("callers must not share result slices")
	}

	simA, _ := e.SimilarProducts(ctx, "A", 2)
	simB, _ := e.SimilarProducts(ctx, "A", 2)
	if !reflect.DeepEqual(simA, simB) {
		t.Errorf("repeated SimilarProducts() differs: %+v vs %+v", simA, simB)
	}

	// 重新训练后版本变化，旧缓存不再命中
	src.Replace(shoeSnapshot())
	if err := e.Train(ctx); err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	recs, err := e.Recommend(ctx, "u1", 5)
	if err != nil {
		t.Fatalf("Recommend() error = %v", err)
	}
	for _, r := range recs {
		if r.ProductID == "D" {
			t.Errorf("stale result served after retraining: %+v", recs)
		}
	}
}

type downRecall struct{ name string }

func (d downRecall) Name() string { return d.name }

func (d downRecall) Recall(context.Context, *pipeline.RecommendContext) ([]*core.Item, error) {
	return nil, errors.New("connection refused")
}

func TestEngine_DegradedResultsNotCached(t *testing.T) {
	c := cache.New(store.NewMemoryStore())
	defer c.Close()
	e := trained(t, datasource.NewMemory(shopSnapshot()), WithCache(c))
	ctx := context.Background()
	version := e.Model().Version

	fan := e.recommendPipeline.Nodes[0].(*recall.Fanout)
	healthy := fan.Sources

	fan.Sources = []recall.Source{downRecall{"collaborative"}, downRecall{"content"}}
	recs, err := e.Recommend(ctx, "u1", 5)
	if !errors.Is(err, core.ErrRecallUnavailable) {
		t.Fatalf("Recommend() with every source down = %v, %v; want ErrRecallUnavailable", recs, err)
	}
	if _, ok := c.GetRecommendations(ctx, "u1", version, 5); ok {
		t.Error("failed request left an entry in the cache")
	}

	fan.Sources = []recall.Source{healthy[0], downRecall{"content"}}
	recs, err = e.Recommend(ctx, "u1", 5)
	if err != nil || len(recs) == 0 {
		t.Fatalf("Recommend() with one source down = %v, %v", recs, err)
	}
	if _, ok := c.GetRecommendations(ctx, "u1", version, 5); ok {
		t.Error("partial result was cached")
	}

	fan.Sources = healthy
	if _, err := e.Recommend(ctx, "u1", 5); err != nil {
		t.Fatalf("Recommend() after recovery error = %v", err)
	}
	if _, ok := c.GetRecommendations(ctx, "u1", version, 5); !ok {
		t.Error("complete result was not cached after recovery")
	}

	similar := e.similarPipeline.Nodes[0].(*recall.Fanout)
	similar.Sources = []recall.Source{downRecall{"similar"}}
	if _, err := e.SimilarProducts(ctx, "A", 2); !core.IsUnavailable(err) {
		t.Errorf("SimilarProducts() with source down error = %v, want unavailable", err)
	}
	if _, ok := c.GetSimilar(ctx, "A", version, 2); ok {
		t.Error("failed similar request left an entry in the cache")
	}
}

type blockingSource struct {
	*datasource.Memory
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func (b *blockingSource) Products(ctx context.Context) ([]core.Product, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Memory.Products(ctx)
}

func TestEngine_ConcurrentTrainRejected(t *testing.T) {
	src := &blockingSource{
		Memory:  datasource.NewMemory(shopSnapshot()),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	e := New(src)

	done := make(chan error, 1)
	go func() { done <- e.Train(context.Background()) }()
	<-src.started

	if !e.Status().Training {
		t.Error("Status().Training = false during training")
	}
	if err := e.Train(context.Background()); !errors.Is(err, core.ErrTrainingInProgress) {
		t.Errorf("second Train() error = %v, want ErrTrainingInProgress", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("first Train() error = %v", err)
	}
	if !e.IsTrained() || e.Status().Training {
		t.Errorf("Status() after training = %+v", e.Status())
	}
}

type failingSource struct {
	*datasource.Memory
	err error
}

func (f *failingSource) Interactions(ctx context.Context) ([]core.Interaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.Memory.Interactions(ctx)
}

func TestEngine_FailedTrainingKeepsModel(t *testing.T) {
	mem := datasource.NewMemory(shopSnapshot())
	src := &failingSource{Memory: mem}
	e := trained(t, src)
	version := e.Model().Version

	src.err = errors.New("connection reset")
	if err := e.Train(context.Background()); err == nil {
		t.Fatal("Train() should fail when interactions cannot be loaded")
	}
	if e.Model().Version != version {
		t.Error("failed training replaced the model")
	}
	if st := e.Status(); st.LastError == "" || st.Version != version || st.Runs != 2 {
		t.Errorf("Status() = %+v", st)
	}

	src.err = nil
	mem.Replace(datasource.Snapshot{})
	if err := e.Train(context.Background()); !errors.Is(err, core.ErrNoData) {
		t.Errorf("Train() on empty catalog error = %v, want ErrNoData", err)
	}
	if _, err := e.Recommend(context.Background(), "u1", 3); err != nil {
		t.Errorf("Recommend() after failed retrain error = %v", err)
	}
}

func TestEngine_Filters(t *testing.T) {
	inStock, err := filter.NewExprFilter("product.stock > 0")
	if err != nil {
		t.Fatalf("NewExprFilter() error = %v", err)
	}
	e := trained(t, datasource.NewMemory(shopSnapshot()),
		WithFilters(filter.NewBlacklistFilter([]string{"C"}), inStock))
	ctx := context.Background()

	popular, err := e.PopularProducts(ctx, 10)
	if err != nil {
		t.Fatalf("PopularProducts() error = %v", err)
	}
	if want := []string{"B", "A"}; !reflect.DeepEqual(ids(popular, recID), want) {
		t.Errorf("PopularProducts() = %v, want %v", ids(popular, recID), want)
	}

	similar, err := e.SimilarProducts(ctx, "A", 10)
	if err != nil {
		t.Fatalf("SimilarProducts() error = %v", err)
	}
	for _, s := range similar {
		if s.ProductID == "C" || s.ProductID == "D" {
			t.Errorf("filtered product returned: %+v", similar)
		}
	}
}

func TestEngine_Diversity(t *testing.T) {
	snap := shopSnapshot()
	for i, cat := range []string{"shoes", "shoes", "office", "shoes"} {
		snap.Products[i].Category = cat
	}
	e := trained(t, datasource.NewMemory(snap), WithSettings(Settings{MaxPerCategory: 1}))

	popular, err := e.PopularProducts(context.Background(), 10)
	if err != nil {
		t.Fatalf("PopularProducts() error = %v", err)
	}
	if want := []string{"B", "C"}; !reflect.DeepEqual(ids(popular, recID), want) {
		t.Errorf("PopularProducts() = %v, want %v", ids(popular, recID), want)
	}
}

func TestEngine_Counts(t *testing.T) {
	e := trained(t, datasource.NewMemory(shopSnapshot()),
		WithSettings(Settings{DefaultRecommendCount: 2, MaxCount: 3}))
	ctx := context.Background()

	recs, _ := e.PopularProducts(ctx, 0)
	if len(recs) != 2 {
		t.Errorf("default count returned %d items, want 2", len(recs))
	}
	recs, _ = e.PopularProducts(ctx, 50)
	if len(recs) != 3 {
		t.Errorf("count above MaxCount returned %d items, want 3", len(recs))
	}
}

func TestEngine_Evaluate(t *testing.T) {
	e := trained(t, datasource.NewMemory(shopSnapshot()))
	report, err := e.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if report.Accuracy < 0 || report.Accuracy > 0.95 {
		t.Errorf("Accuracy = %v outside [0, 0.95]", report.Accuracy)
	}
	if report.Users != 2 || report.Purchased != 2 || report.ModelVersion != e.Model().Version {
		t.Errorf("report = %+v", report)
	}

	empty := trained(t, datasource.NewMemory(shoeSnapshot()))
	acc, err := empty.EvaluateAccuracy(context.Background())
	if err != nil || acc != 0.8 {
		t.Errorf("EvaluateAccuracy() without orders = %v, %v; want 0.8", acc, err)
	}
}

func TestEngine_ConcurrentRequests(t *testing.T) {
	e := trained(t, datasource.NewMemory(shopSnapshot()), WithCache(cache.New(store.NewMemoryStore())))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := e.Recommend(ctx, "u2", 3); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			if err := e.Train(ctx); err != nil && !errors.Is(err, core.ErrTrainingInProgress) {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent call failed: %v", err)
	}
}
