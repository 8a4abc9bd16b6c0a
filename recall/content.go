package recall

import (
	"context"
	"sort"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// ContentRecall 是基于内容相似度的召回。
//
// 对用户加购/下单过的每个商品，取相似度 > Threshold 且用户未拥有的商品，
// 得分为相似度。用户没有拥有任何商品时退化为 Fallback（默认热度召回）。
type ContentRecall struct {
	Threshold  float64
	Multiplier int

	// Fallback 用户无历史时使用，nil 时使用 PopularRecall
	Fallback Source
}

func (r *ContentRecall) Name() string { return "content" }

func (r *ContentRecall) Recall(
	ctx context.Context,
	rctx *pipeline.RecommendContext,
) ([]*core.Item, error) {
	if rctx.Model == nil {
		return nil, core.ErrNotReady
	}

	owned := rctx.Model.Owned(rctx.UserID)
	if len(owned) == 0 {
		fallback := r.Fallback
		if fallback == nil {
			fallback = &PopularRecall{Multiplier: r.Multiplier}
		}
		return fallback.Recall(ctx, rctx)
	}

	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	anchors := make([]string, 0, len(owned))
	for id := range owned {
		anchors = append(anchors, id)
	}
	sort.Strings(anchors)

	var out []*core.Item
	for _, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		neighbors, err := rctx.Model.Content.Neighbors(anchor, threshold)
		if err != nil {
			// 拥有的商品已下架，不影响其他锚点
			continue
		}
		for _, n := range neighbors {
			if _, mine := owned[n.ProductID]; mine {
				continue
			}
			out = append(out, newCandidate(n.ProductID, n.Similarity, r.Name()))
		}
	}
	return sortAndCap(out, candidateLimit(rctx, r.Multiplier)), nil
}
