// Package shoprec 是一个面向电商的混合推荐引擎。
//
// 设计要点：
// - 内容相似度：商品文本 TF-IDF + 标准化价格，预先计算全量商品两两余弦相似度
// - 协同过滤：用户 × 商品交互矩阵，基于用户相似度召回
// - 混合：两路候选按商品合并取平均分，排序截断；无历史用户退化为热度榜
// - 不可变模型：每次训练产出带版本的 Bundle，原子替换，请求期间版本不变
// - 结果缓存：recommendations:<userId> / similar:<productId>，默认 1 小时过期
package shoprec

import (
	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/engine"
	"github.com/rushteam/shoprec/pipeline"
)

// 轻量 facade：便于直接 import "shoprec" 使用核心类型。
type (
	Engine         = engine.Engine
	Option         = engine.Option
	Settings       = engine.Settings
	Status         = engine.Status
	Product        = core.Product
	Interaction    = core.Interaction
	Recommendation = core.Recommendation
	SimilarProduct = core.SimilarProduct
	DataSource     = core.DataSource
	Store          = core.Store
	Pipeline       = pipeline.Pipeline
	Node           = pipeline.Node
	Kind           = pipeline.Kind
)

const (
	KindRecall = pipeline.KindRecall
	KindFilter = pipeline.KindFilter
	KindReRank = pipeline.KindReRank
)

var (
	ErrNotReady           = core.ErrNotReady
	ErrNoData             = core.ErrNoData
	ErrUnknownProduct     = core.ErrUnknownProduct
	ErrRecallUnavailable  = core.ErrRecallUnavailable
	ErrTrainingInProgress = core.ErrTrainingInProgress
)

// New 创建引擎，等同于 engine.New
func New(source DataSource, opts ...Option) *Engine {
	return engine.New(source, opts...)
}
