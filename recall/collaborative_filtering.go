package recall

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// CollaborativeRecall 是基于用户的协同过滤召回。
//
// 算法：
//  1. 计算当前用户交互行与其他用户交互行的余弦相似度
//  2. 跳过自身与相似度 < Threshold 的用户
//  3. 相似用户交互过、当前用户未交互过的商品，得分 = 对方强度 × 相似度
//
// 用户不在交互矩阵中（或本轮无矩阵）时返回空。
type CollaborativeRecall struct {
	Threshold  float64
	Multiplier int
}

func (r *CollaborativeRecall) Name() string { return "collaborative" }

func (r *CollaborativeRecall) Recall(
	ctx context.Context,
	rctx *pipeline.RecommendContext,
) ([]*core.Item, error) {
	if rctx.Model == nil {
		return nil, core.ErrNotReady
	}
	matrix := rctx.Model.Interactions
	if matrix == nil || !matrix.HasUser(rctx.UserID) {
		return nil, nil
	}

	threshold := r.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	mine, _ := matrix.Row(rctx.UserID)
	products := matrix.Products()

	var out []*core.Item
	for _, neighbor := range matrix.SimilarUsers(rctx.UserID, threshold) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		theirs, _ := matrix.Row(neighbor.UserID)
		for j, score := range theirs {
			if score <= 0 || mine[j] > 0 {
				continue
			}
			out = append(out, newCandidate(products[j], score*neighbor.Similarity, r.Name()))
		}
	}
	return sortAndCap(out, candidateLimit(rctx, r.Multiplier)), nil
}
