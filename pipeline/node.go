package pipeline

import (
	"context"

	"github.com/rushteam/shoprec/core"
)

// Kind 标记 Node 所处阶段，打点时作为 stage 维度。
type Kind string

const (
	KindRecall Kind = "recall" // 产出候选商品：协同过滤、内容相似、热度
	KindFilter Kind = "filter" // 按规则剔除候选：黑名单、库存、价格
	KindReRank Kind = "rerank" // 排序、打散与截断
)

// Node 是推荐链路中的一个步骤，输入候选列表，输出新的候选列表。
// 召回节点忽略输入直接产出候选；其余节点在输入上做删减或重排。
// 同一个 Node 会被并发请求共享，实现不能持有请求级状态。
type Node interface {
	Name() string
	Kind() Kind

	Process(
		ctx context.Context,
		rctx *RecommendContext,
		items []*core.Item,
	) ([]*core.Item, error)
}
