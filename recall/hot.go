package recall

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// PopularRecall 是热度召回：加购次数 + 3 × 订单次数，score = 热度 / 10。
// 用于没有任何历史的用户。
type PopularRecall struct {
	Multiplier int
}

func (r *PopularRecall) Name() string { return "popular" }

func (r *PopularRecall) Recall(
	_ context.Context,
	rctx *pipeline.RecommendContext,
) ([]*core.Item, error) {
	if rctx.Model == nil {
		return nil, core.ErrNotReady
	}
	popular := rctx.Model.Popularity(candidateLimit(rctx, r.Multiplier))
	out := make([]*core.Item, 0, len(popular))
	for _, p := range popular {
		out = append(out, newCandidate(p.ProductID, p.Score, r.Name()))
	}
	return out, nil
}
