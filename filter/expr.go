package filter

import (
	"context"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/dsl"
)

// ExprFilter 用 CEL 表达式描述候选的准入条件，表达式为 false 的候选被过滤。
// 不在当前模型目录中的商品一律过滤。
//
// 示例：
//
//	f, err := filter.NewExprFilter("product.stock > 0")
type ExprFilter struct {
	prg *dsl.Program
}

// NewExprFilter 编译表达式；表达式有误时返回错误。
func NewExprFilter(expr string) (*ExprFilter, error) {
	prg, err := dsl.Compile(expr)
	if err != nil {
		return nil, err
	}
	return &ExprFilter{prg: prg}, nil
}

func (f *ExprFilter) Name() string {
	return "filter.expr"
}

// Expr 返回原始表达式
func (f *ExprFilter) Expr() string {
	return f.prg.String()
}

func (f *ExprFilter) ShouldFilter(
	_ context.Context,
	rctx *pipeline.RecommendContext,
	item *core.Item,
) (bool, error) {
	if item == nil || rctx.Model == nil {
		return true, nil
	}
	product, ok := rctx.Model.Product(item.ID)
	if !ok {
		return true, nil
	}
	keep, err := f.prg.Evaluate(rctx.UserID, product, item)
	if err != nil {
		return false, err
	}
	return !keep, nil
}
