package recall

import (
	"context"
	"sort"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/utils"
)

// DefaultThreshold 是用户/商品相似度的最低阈值
const DefaultThreshold = 0.1

// DefaultCandidateMultiplier 每个召回源最多产出 count × 2 条候选
const DefaultCandidateMultiplier = 2

// Source 表示一个可复用的召回源（协同过滤/内容/热门/相似商品）。
// 同一商品可以出现多次，每条代表一个独立贡献，合并时取平均。
type Source interface {
	Name() string
	Recall(ctx context.Context, rctx *pipeline.RecommendContext) ([]*core.Item, error)
}

// candidateLimit 计算单个召回源的候选上限，<= 0 表示不限制
func candidateLimit(rctx *pipeline.RecommendContext, multiplier int) int {
	if rctx.Count <= 0 {
		return 0
	}
	if multiplier <= 0 {
		multiplier = DefaultCandidateMultiplier
	}
	return rctx.Count * multiplier
}

// sortAndCap 按分数降序、ID 升序稳定排序后截断
func sortAndCap(items []*core.Item, limit int) []*core.Item {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func newCandidate(id string, score float64, source string) *core.Item {
	it := core.NewItem(id)
	it.Score = score
	it.PutLabel(core.LabelRecallSource, utils.Label{Value: source, Source: "recall"})
	return it
}
