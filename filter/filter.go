package filter

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// Filter 判断候选商品是否应从结果中剔除，true 表示剔除。
// 商品属性从 rctx.Model 读取，与本次请求使用的模型版本一致。
//
// 实现：
//   - BlacklistFilter：固定商品 ID 列表
//   - ExprFilter：CEL 表达式，如 product.stock > 0
type Filter interface {
	Name() string

	// ShouldFilter 返回错误时，FilterNode 保留该候选并回调 OnError
	ShouldFilter(ctx context.Context, rctx *pipeline.RecommendContext, item *core.Item) (bool, error)
}
