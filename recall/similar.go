package recall

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// SimilarRecall 召回与 rctx.ProductID 内容相似的商品，结果不含锚点自身。
// 锚点不在模型中时返回 core.ErrUnknownProduct。
type SimilarRecall struct {
	Threshold  float64
	Multiplier int
}

func (r *SimilarRecall) Name() string { return "similar" }

func (r *SimilarRecall) Recall(
	_ context.Context,
	rctx *pipeline.RecommendContext,
) ([]*core.Item, error) {
	if rctx.Model == nil {
		return nil, core.ErrNotReady
	}
	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	neighbors, err := rctx.Model.Content.Neighbors(rctx.ProductID, threshold)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Item, 0, len(neighbors))
	for _, n := range neighbors {
		out = append(out, newCandidate(n.ProductID, n.Similarity, r.Name()))
	}
	return sortAndCap(out, candidateLimit(rctx, r.Multiplier)), nil
}
