package recall

import (
	"context"
	"errors"
	"math"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/model"
	"github.com/rushteam/shoprec/pipeline"
)

type staticSource struct {
	name  string
	items map[string][]float64 // product -> scores, one candidate per score
	order []string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Recall(ctx context.Context, _ *pipeline.RecommendContext) ([]*core.Item, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	var out []*core.Item
	for _, id := range s.order {
		for _, score := range s.items[id] {
			out = append(out, newCandidate(id, score, s.name))
		}
	}
	return out, nil
}

func catalog() []core.Product {
	return []core.Product{
		{ID: "A", Name: "red shoe", Price: 50},
		{ID: "B", Name: "red sandal", Price: 40},
		{ID: "C", Name: "blue laptop", Price: 900},
		{ID: "D", Name: "red shoe lace", Price: 5},
	}
}

func mustBundle(t *testing.T, interactions []core.Interaction) *model.Bundle {
	t.Helper()
	b, err := model.NewBundle(catalog(), interactions)
	if err != nil {
		t.Fatalf("NewBundle() error = %v", err)
	}
	return b
}

func TestFanout_MergeMean(t *testing.T) {
	cf := &staticSource{name: "collaborative", items: map[string][]float64{"X": {0.8}}, order: []string{"X"}}
	cb := &staticSource{name: "content", items: map[string][]float64{"X": {0.4}, "Y": {0.3}}, order: []string{"X", "Y"}}

	out, err := (&Fanout{Sources: []Source{cf, cb}}).Process(context.Background(), &pipeline.RecommendContext{Count: 5}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].ID != "X" || math.Abs(out[0].Score-0.6) > 1e-12 {
		t.Errorf("X = %s/%v, want score 0.6", out[0].ID, out[0].Score)
	}
	if got := out[0].Sources(); !reflect.DeepEqual(got, []string{"collaborative", "content"}) {
		t.Errorf("X sources = %v", got)
	}
	if out[1].ID != "Y" || out[1].Score != 0.3 {
		t.Errorf("Y = %s/%v", out[1].ID, out[1].Score)
	}
}

func TestFanout_MeanOverEveryContribution(t *testing.T) {
	cf := &staticSource{name: "collaborative", items: map[string][]float64{"X": {0.9, 0.3}}, order: []string{"X"}}
	cb := &staticSource{name: "content", items: map[string][]float64{"X": {0.3}}, order: []string{"X"}}
	out, err := (&Fanout{Sources: []Source{cf, cb}}).Process(context.Background(), &pipeline.RecommendContext{}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 1 || math.Abs(out[0].Score-0.5) > 1e-12 {
		t.Fatalf("out = %+v, want one item with score 0.5", out)
	}
	if got := out[0].Meta["contributions"]; got != 3 {
		t.Errorf("contributions = %v, want 3", got)
	}
}

func TestFanout_SourceFailures(t *testing.T) {
	ok := &staticSource{name: "content", items: map[string][]float64{"X": {0.4}}, order: []string{"X"}}
	broken := &staticSource{name: "broken", err: errors.New("db down")}
	slow := &staticSource{name: "slow", delay: time.Second, items: map[string][]float64{"Z": {1}}, order: []string{"Z"}}

	var observed atomic.Int32
	n := &Fanout{
		Sources: []Source{ok, broken, slow},
		Timeout: 20 * time.Millisecond,
		OnSource: func(string, int, time.Duration, error) {
			observed.Add(1)
		},
	}
	rctx := &pipeline.RecommendContext{}
	out, err := n.Process(context.Background(), rctx, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 1 || out[0].ID != "X" {
		t.Errorf("out = %v, want only X", out)
	}
	if observed.Load() != 3 {
		t.Errorf("observer called %d times, want 3", observed.Load())
	}
	if !rctx.Degraded {
		t.Error("partial failure should mark the request as degraded")
	}
}

func TestFanout_AllSourcesFail(t *testing.T) {
	broken := &staticSource{name: "broken", err: errors.New("db down")}
	slow := &staticSource{name: "slow", delay: time.Second, items: map[string][]float64{"Z": {1}}, order: []string{"Z"}}

	rctx := &pipeline.RecommendContext{}
	out, err := (&Fanout{Sources: []Source{broken, slow}, Timeout: 10 * time.Millisecond}).Process(context.Background(), rctx, nil)
	if !errors.Is(err, core.ErrRecallUnavailable) || !core.IsUnavailable(err) {
		t.Fatalf("Process() = %v, %v; want ErrRecallUnavailable", out, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error should keep the source causes, got %v", err)
	}
	if !rctx.Degraded {
		t.Error("Degraded = false after every source failed")
	}

	// 召回源正常但没有候选，是合法的空结果
	empty := &staticSource{name: "empty"}
	rctx = &pipeline.RecommendContext{}
	out, err = (&Fanout{Sources: []Source{empty}}).Process(context.Background(), rctx, nil)
	if err != nil || len(out) != 0 || rctx.Degraded {
		t.Errorf("empty source = %v, %v, degraded=%v", out, err, rctx.Degraded)
	}
}

func TestFanout_ModelErrorPropagates(t *testing.T) {
	src := &staticSource{name: "similar", err: core.ErrUnknownProduct}
	_, err := (&Fanout{Sources: []Source{src}}).Process(context.Background(), &pipeline.RecommendContext{}, nil)
	if !errors.Is(err, core.ErrUnknownProduct) {
		t.Errorf("error = %v, want ErrUnknownProduct", err)
	}
}

func TestFanout_MergeFirst(t *testing.T) {
	a := &staticSource{name: "a", items: map[string][]float64{"X": {0.8}}, order: []string{"X"}}
	b := &staticSource{name: "b", items: map[string][]float64{"X": {0.2}}, order: []string{"X"}}
	out, err := (&Fanout{Sources: []Source{a, b}, MergeStrategy: MergeFirst, MaxConcurrent: 1}).Process(context.Background(), &pipeline.RecommendContext{}, nil)
	if err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(out) != 1 || out[0].Score != 0.8 {
		t.Errorf("out = %+v, want X with 0.8", out)
	}
}

func TestCollaborativeRecall(t *testing.T) {
	b := mustBundle(t, []core.Interaction{
		core.NewInteraction("u1", "A", core.InteractionCart, 1),
		core.NewInteraction("u2", "A", core.InteractionCart, 1),
		core.NewInteraction("u2", "C", core.InteractionOrder, 1),
		core.NewInteraction("u3", "D", core.InteractionCart, 1),
	})
	r := &CollaborativeRecall{}
	out, err := r.Recall(context.Background(), &pipeline.RecommendContext{UserID: "u1", Count: 5, Model: b})
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	// u2 与 u1 相似度 = 1/sqrt(10)，C 的强度为 3
	if len(out) != 1 || out[0].ID != "C" {
		t.Fatalf("out = %+v, want only C", out)
	}
	want := 3 / math.Sqrt(10)
	if math.Abs(out[0].Score-want) > 1e-9 {
		t.Errorf("score = %v, want %v", out[0].Score, want)
	}

	none, err := r.Recall(context.Background(), &pipeline.RecommendContext{UserID: "stranger", Count: 5, Model: b})
	if err != nil || len(none) != 0 {
		t.Errorf("stranger: out = %v, err = %v", none, err)
	}

	if _, err := r.Recall(context.Background(), &pipeline.RecommendContext{UserID: "u1"}); !errors.Is(err, core.ErrNotReady) {
		t.Errorf("nil model error = %v, want ErrNotReady", err)
	}
}

func TestContentRecall(t *testing.T) {
	b := mustBundle(t, []core.Interaction{
		core.NewInteraction("u1", "A", core.InteractionCart, 1),
		core.NewInteraction("u2", "C", core.InteractionOrder, 2),
	})
	r := &ContentRecall{}
	out, err := r.Recall(context.Background(), &pipeline.RecommendContext{UserID: "u1", Count: 5, Model: b})
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	if len(out) == 0 {
		t.Fatal("expected content candidates for u1")
	}
	for _, it := range out {
		if it.ID == "A" {
			t.Error("owned product A must not be recommended")
		}
		if it.Score <= DefaultThreshold {
			t.Errorf("%s score %v should exceed the threshold", it.ID, it.Score)
		}
		if sim, _ := b.Content.Similarity("A", it.ID); sim != it.Score {
			t.Errorf("%s score = %v, want similarity %v", it.ID, it.Score, sim)
		}
	}
}

func TestContentRecall_PopularFallback(t *testing.T) {
	b := mustBundle(t, []core.Interaction{
		core.NewInteraction("u2", "C", core.InteractionOrder, 2),
		core.NewInteraction("u3", "B", core.InteractionCart, 1),
	})
	rctx := &pipeline.RecommendContext{UserID: "newcomer", Count: 2, Model: b}
	out, err := (&ContentRecall{}).Recall(context.Background(), rctx)
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	popular := b.Popularity(4)
	if len(out) != len(popular) {
		t.Fatalf("len = %d, want %d", len(out), len(popular))
	}
	for i, p := range popular {
		if out[i].ID != p.ProductID || out[i].Score != p.Score {
			t.Errorf("out[%d] = %s/%v, want %s/%v", i, out[i].ID, out[i].Score, p.ProductID, p.Score)
		}
		if got := out[i].Sources(); !reflect.DeepEqual(got, []string{"popular"}) {
			t.Errorf("out[%d] sources = %v", i, got)
		}
	}
}

func TestSimilarRecall(t *testing.T) {
	b := mustBundle(t, nil)
	r := &SimilarRecall{}
	out, err := r.Recall(context.Background(), &pipeline.RecommendContext{ProductID: "A", Count: 1, Model: b})
	if err != nil {
		t.Fatalf("Recall() error = %v", err)
	}
	for _, it := range out {
		if it.ID == "A" {
			t.Error("similar recall returned the anchor itself")
		}
	}
	if _, err := r.Recall(context.Background(), &pipeline.RecommendContext{ProductID: "nope", Model: b}); !errors.Is(err, core.ErrUnknownProduct) {
		t.Errorf("unknown product error = %v", err)
	}
}

func TestSortAndCap(t *testing.T) {
	in := []*core.Item{newCandidate("B", 0.5, "x"), newCandidate("A", 0.5, "x"), newCandidate("C", 0.9, "x")}
	out := sortAndCap(in, 2)
	if len(out) != 2 || out[0].ID != "C" || out[1].ID != "A" {
		t.Errorf("sortAndCap() = [%s %s]", out[0].ID, out[1].ID)
	}
}
