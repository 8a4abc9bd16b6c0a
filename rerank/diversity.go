package rerank

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// Diversity 按类目打散：每个类目最多保留 MaxPerCategory 个候选，保持原有顺序。
// 类目来源优先级：
// - label[LabelKey].Value
// - 当前模型中商品的 Category
//
// 需放在 ScoreSortNode 之后、TopNNode 之前。
type Diversity struct {
	MaxPerCategory int    // <= 0 时不生效
	LabelKey       string // 默认 "category"
}

func (n *Diversity) Name() string {
	return "rerank.diversity"
}

func (n *Diversity) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *Diversity) Process(
	_ context.Context,
	rctx *pipeline.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	if len(items) == 0 || n.MaxPerCategory <= 0 {
		return items, nil
	}

	key := n.LabelKey
	if key == "" {
		key = "category"
	}

	seen := make(map[string]int, 16)
	out := make([]*core.Item, 0, len(items))

	for _, it := range items {
		if it == nil {
			continue
		}

		cate := ""
		if lbl, ok := it.Labels[key]; ok {
			cate = lbl.Value
		}
		if cate == "" && rctx != nil && rctx.Model != nil {
			if p, ok := rctx.Model.Product(it.ID); ok {
				cate = p.Category
			}
		}

		// 无类目的候选不参与打散
		if cate == "" {
			out = append(out, it)
			continue
		}
		if seen[cate] >= n.MaxPerCategory {
			continue
		}
		seen[cate]++
		out = append(out, it)
	}

	return out, nil
}
