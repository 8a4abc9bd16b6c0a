// Package engine 是混合推荐引擎的入口。
//
// 训练在旁路构建完整的 model.Bundle 后原子替换；请求开始时取一次 Bundle，
// 整条 Pipeline 使用同一个版本，因此训练期间服务不中断，也不会读到半成品。
//
//	e := engine.New(source, engine.WithCache(c), engine.WithLogger(logger))
//	if err := e.Train(ctx); err != nil { ... }
//	recs, err := e.Recommend(ctx, "user-1", 10)
package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/rushteam/shoprec/cache"
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/eval"
	"github.com/rushteam/shoprec/filter"
	"github.com/rushteam/shoprec/metrics"
	"github.com/rushteam/shoprec/model"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/recall"
	"github.com/rushteam/shoprec/rerank"
)

const (
	opRecommend = "recommend"
	opSimilar   = "similar"
	opPopular   = "popular"
)

// Status 训练状态
type Status struct {
	Version              string        `json:"version"`
	TrainedAt            time.Time     `json:"trained_at"`
	Products             int           `json:"products"`
	Users                int           `json:"users"`
	CollaborativeEnabled bool          `json:"collaborative_enabled"`
	LastDuration         time.Duration `json:"last_duration"`
	LastError            string        `json:"last_error,omitempty"`
	Training             bool          `json:"training"`
	Runs                 int           `json:"runs"`
}

// Engine 混合推荐引擎，所有方法并发安全。
type Engine struct {
	source   core.DataSource
	settings Settings
	evalSet  eval.Settings
	cache    *cache.ResultCache
	filters  []filter.Filter
	logger   zerolog.Logger

	bundle  atomic.Pointer[model.Bundle]
	trainMu sync.Mutex

	statusMu sync.RWMutex
	status   Status

	flight singleflight.Group

	recommendPipeline *pipeline.Pipeline
	similarPipeline   *pipeline.Pipeline
	popularPipeline   *pipeline.Pipeline
}

// Option 配置 Engine
type Option func(*Engine)

// WithSettings 设置引擎参数
func WithSettings(s Settings) Option {
	return func(e *Engine) { e.settings = s }
}

// WithEvalSettings 设置评估参数
func WithEvalSettings(s eval.Settings) Option {
	return func(e *Engine) { e.evalSet = s }
}

// WithCache 设置结果缓存，nil 表示不缓存
func WithCache(c *cache.ResultCache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithFilters 追加候选过滤器（黑名单、表达式等）
func WithFilters(filters ...filter.Filter) Option {
	return func(e *Engine) { e.filters = append(e.filters, filters...) }
}

// WithLogger 设置 logger
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New 创建引擎。引擎在第一次 Train 成功之前处于未就绪状态。
func New(source core.DataSource, opts ...Option) *Engine {
	e := &Engine{
		source:   source,
		settings: DefaultSettings(),
		evalSet:  eval.DefaultSettings(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.settings = e.settings.withDefaults()
	e.logger = e.logger.With().Str("component", "engine").Logger()
	e.buildPipelines()
	return e
}

func (e *Engine) buildPipelines() {
	s := e.settings
	tail := func(diversify bool) []pipeline.Node {
		nodes := []pipeline.Node{
			&filter.FilterNode{Filters: e.filters, OnError: e.onFilterError},
			&rerank.ScoreSortNode{},
		}
		if diversify && s.MaxPerCategory > 0 {
			nodes = append(nodes, &rerank.Diversity{MaxPerCategory: s.MaxPerCategory})
		}
		return append(nodes, &rerank.TopNNode{})
	}
	fanout := func(sources ...recall.Source) *recall.Fanout {
		return &recall.Fanout{
			Sources:       sources,
			Timeout:       s.SourceTimeout,
			MergeStrategy: recall.MergeMean,
			OnSource:      e.onSource,
		}
	}

	e.recommendPipeline = &pipeline.Pipeline{
		Nodes: append([]pipeline.Node{fanout(
			&recall.CollaborativeRecall{Threshold: s.Threshold, Multiplier: s.CandidateMultiplier},
			&recall.ContentRecall{Threshold: s.Threshold, Multiplier: s.CandidateMultiplier},
		)}, tail(true)...),
		Observe: e.onNode,
	}
	e.similarPipeline = &pipeline.Pipeline{
		Nodes: append([]pipeline.Node{fanout(
			&recall.SimilarRecall{Threshold: s.Threshold, Multiplier: s.CandidateMultiplier},
		)}, tail(false)...),
		Observe: e.onNode,
	}
	e.popularPipeline = &pipeline.Pipeline{
		Nodes: append([]pipeline.Node{fanout(
			&recall.PopularRecall{Multiplier: s.CandidateMultiplier},
		)}, tail(true)...),
		Observe: e.onNode,
	}
}

// IsTrained 是否已有可用模型
func (e *Engine) IsTrained() bool {
	return e.bundle.Load() != nil
}

// Status 返回训练状态快照
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// Model 返回当前模型，未训练时为 nil
func (e *Engine) Model() *model.Bundle {
	return e.bundle.Load()
}

// Train 读取上游数据并重建模型。
//
// 已有训练在进行时立即返回 core.ErrTrainingInProgress。
// 任何失败（包括商品目录为空的 core.ErrNoData）都保留之前的模型。
func (e *Engine) Train(ctx context.Context) error {
	if !e.trainMu.TryLock() {
		metrics.RecordTraining(metrics.TrainRejected, 0)
		return core.ErrTrainingInProgress
	}
	defer e.trainMu.Unlock()

	if e.source == nil {
		return fmt.Errorf("engine: no data source configured")
	}

	e.setTraining(true)
	start := time.Now()
	e.logger.Info().Str("source", e.source.Name()).Msg("starting model training")

	bundle, err := e.build(ctx)
	elapsed := time.Since(start)

	e.statusMu.Lock()
	e.status.Training = false
	e.status.Runs++
	e.status.LastDuration = elapsed
	if err != nil {
		e.status.LastError = err.Error()
	} else {
		e.status.LastError = ""
		e.status.Version = bundle.Version
		e.status.TrainedAt = bundle.TrainedAt
		e.status.Products = bundle.ProductCount()
		e.status.Users = bundle.UserCount()
		e.status.CollaborativeEnabled = bundle.CollaborativeEnabled()
	}
	e.statusMu.Unlock()

	switch {
	case core.IsNoData(err):
		metrics.RecordTraining(metrics.TrainNoData, elapsed)
		e.logger.Warn().Dur("duration", elapsed).Msg("catalog is empty, keeping previous model")
		return err
	case err != nil:
		metrics.RecordTraining(metrics.TrainFailure, elapsed)
		e.logger.Error().Err(err).Dur("duration", elapsed).Msg("model training failed, keeping previous model")
		return err
	}

	e.bundle.Store(bundle)
	metrics.RecordTraining(metrics.TrainSuccess, elapsed)
	metrics.SetModel(bundle.Version, bundle.CollaborativeEnabled(), bundle.ProductCount(), bundle.UserCount())

	if !bundle.CollaborativeEnabled() {
		e.logger.Warn().Str("version", bundle.Version).Msg("no interactions, collaborative filtering skipped this cycle")
	}
	e.logger.Info().
		Str("version", bundle.Version).
		Int("products", bundle.ProductCount()).
		Int("users", bundle.UserCount()).
		Int("vocabulary", len(bundle.Content.Vocabulary())).
		Dur("duration", elapsed).
		Msg("model training complete")
	return nil
}

func (e *Engine) setTraining(v bool) {
	e.statusMu.Lock()
	e.status.Training = v
	e.statusMu.Unlock()
}

// build 并发读取商品与交互，然后构建 Bundle
func (e *Engine) build(ctx context.Context) (*model.Bundle, error) {
	loadCtx, cancel := context.WithTimeout(ctx, e.settings.LoadTimeout)
	defer cancel()

	var (
		products     []core.Product
		interactions []core.Interaction
	)
	eg, egCtx := errgroup.WithContext(loadCtx)
	eg.Go(func() error {
		p, err := e.source.Products(egCtx)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		products = p
		return nil
	})
	eg.Go(func() error {
		it, err := e.source.Interactions(egCtx)
		if err != nil {
			return fmt.Errorf("load interactions: %w", err)
		}
		interactions = it
		return nil
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info().
		Int("products", len(products)).
		Int("interactions", len(interactions)).
		Msg("loaded training data")

	return model.NewBundle(products, interactions, e.settings.tfidfOptions()...)
}

// Recommend 为用户生成推荐。
//
// 没有任何历史的用户得到热度榜；未训练时返回 core.ErrNotReady。
// count <= 0 使用默认数量。同一模型版本、同一数量的结果在缓存有效期内保持一致。
// 部分召回源失败时返回不完整的结果且不写缓存；全部失败时返回 core.ErrRecallUnavailable。
func (e *Engine) Recommend(ctx context.Context, userID string, count int) ([]core.Recommendation, error) {
	start := time.Now()
	recs, err := e.recommend(ctx, userID, count)
	metrics.RecordRequest(opRecommend, outcome(err), time.Since(start))
	return recs, err
}

func (e *Engine) recommend(ctx context.Context, userID string, count int) ([]core.Recommendation, error) {
	b := e.bundle.Load()
	if b == nil {
		return nil, core.ErrNotReady
	}
	count = e.settings.count(count, e.settings.DefaultRecommendCount)

	if recs, ok := e.cache.GetRecommendations(ctx, userID, b.Version, count); ok {
		return recs, nil
	}

	v, err := e.do(ctx, flightKey(cache.RecommendationsKey(userID), b.Version, count), func(ctx context.Context) (any, error) {
		rctx := &pipeline.RecommendContext{UserID: userID, Count: count, Model: b}
		items, err := e.recommendPipeline.Run(ctx, rctx, nil)
		if err != nil {
			return nil, err
		}
		recs := make([]core.Recommendation, 0, len(items))
		for _, it := range items {
			recs = append(recs, it.Recommendation())
		}
		if rctx.Degraded {
			e.logger.Debug().Str("user", userID).Msg("degraded result not cached")
		} else {
			e.cache.PutRecommendations(ctx, userID, b.Version, count, recs)
		}
		return recs, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]core.Recommendation)
	out := make([]core.Recommendation, len(shared))
	copy(out, shared)
	return out, nil
}

// SimilarProducts 返回与商品内容最相似的商品，结果不含商品自身。
// 商品不在当前模型中时返回 core.ErrUnknownProduct。
func (e *Engine) SimilarProducts(ctx context.Context, productID string, count int) ([]core.SimilarProduct, error) {
	start := time.Now()
	out, err := e.similar(ctx, productID, count)
	metrics.RecordRequest(opSimilar, outcome(err), time.Since(start))
	return out, err
}

func (e *Engine) similar(ctx context.Context, productID string, count int) ([]core.SimilarProduct, error) {
	b := e.bundle.Load()
	if b == nil {
		return nil, core.ErrNotReady
	}
	if _, ok := b.Content.Index(productID); !ok {
		return nil, core.ErrUnknownProduct
	}
	count = e.settings.count(count, e.settings.DefaultSimilarCount)

	if out, ok := e.cache.GetSimilar(ctx, productID, b.Version, count); ok {
		return out, nil
	}

	v, err := e.do(ctx, flightKey(cache.SimilarKey(productID), b.Version, count), func(ctx context.Context) (any, error) {
		rctx := &pipeline.RecommendContext{ProductID: productID, Count: count, Model: b}
		items, err := e.similarPipeline.Run(ctx, rctx, nil)
		if err != nil {
			return nil, err
		}
		out := make([]core.SimilarProduct, 0, len(items))
		for _, it := range items {
			if it.ID == productID {
				continue
			}
			out = append(out, core.SimilarProduct{ProductID: it.ID, Similarity: it.Score})
		}
		if rctx.Degraded {
			e.logger.Debug().Str("product", productID).Msg("degraded result not cached")
		} else {
			e.cache.PutSimilar(ctx, productID, b.Version, count, out)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]core.SimilarProduct)
	out := make([]core.SimilarProduct, len(shared))
	copy(out, shared)
	return out, nil
}

// PopularProducts 返回热度榜（加购次数 + 3 × 订单次数，score = 热度 / 10）
func (e *Engine) PopularProducts(ctx context.Context, count int) ([]core.Recommendation, error) {
	start := time.Now()
	out, err := e.popular(ctx, count)
	metrics.RecordRequest(opPopular, outcome(err), time.Since(start))
	return out, err
}

func (e *Engine) popular(ctx context.Context, count int) ([]core.Recommendation, error) {
	b := e.bundle.Load()
	if b == nil {
		return nil, core.ErrNotReady
	}
	rctx := &pipeline.RecommendContext{Count: e.settings.count(count, e.settings.DefaultRecommendCount), Model: b}
	items, err := e.popularPipeline.Run(ctx, rctx, nil)
	if err != nil {
		return nil, err
	}
	out := make([]core.Recommendation, 0, len(items))
	for _, it := range items {
		out = append(out, it.Recommendation())
	}
	return out, nil
}

// EvaluateAccuracy 返回 [0, 0.95] 内的准确率，未训练时返回 (0, core.ErrNotReady)
func (e *Engine) EvaluateAccuracy(ctx context.Context) (float64, error) {
	report, err := e.Evaluate(ctx)
	if err != nil {
		return 0, err
	}
	return report.Accuracy, nil
}

// Evaluate 返回评估明细
func (e *Engine) Evaluate(ctx context.Context) (eval.Report, error) {
	b := e.bundle.Load()
	if b == nil {
		return eval.Report{}, core.ErrNotReady
	}
	if e.source == nil {
		return eval.Report{}, fmt.Errorf("engine: no data source configured")
	}
	ev := &eval.Evaluator{
		Purchases:   e.source,
		Recommender: e,
		Settings:    e.evalSet,
		Logger:      e.logger.With().Str("version", b.Version).Logger(),
	}
	report, err := ev.Evaluate(ctx)
	if err != nil {
		return eval.Report{}, err
	}
	report.ModelVersion = b.Version
	return report, nil
}

// do 合并相同 key 的并发计算。共享计算不受单个调用方取消影响，调用方自己的 ctx 仍然生效。
func (e *Engine) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := e.flight.DoChan(key, func() (any, error) {
		return fn(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func flightKey(key, version string, count int) string {
	return key + "@" + version + "#" + strconv.Itoa(count)
}

func (e *Engine) onSource(source string, items int, elapsed time.Duration, err error) {
	metrics.RecordRecall(source, items, err)
	if err != nil {
		e.logger.Warn().Err(err).Str("source", source).Dur("elapsed", elapsed).Msg("recall source failed")
	}
}

func (e *Engine) onNode(node pipeline.Node, elapsed time.Duration, out int, err error) {
	e.logger.Debug().Str("node", node.Name()).Int("items", out).Dur("elapsed", elapsed).Err(err).Msg("pipeline node done")
}

func (e *Engine) onFilterError(name string, item *core.Item, err error) {
	e.logger.Warn().Err(err).Str("filter", name).Str("product", item.ID).Msg("filter failed, keeping candidate")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case core.IsNotReady(err):
		return "not_ready"
	case core.IsNotFound(err):
		return "not_found"
	case core.IsUnavailable(err):
		return "unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
