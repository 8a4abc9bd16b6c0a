package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rushteam/shoprec/core"
)

// ObserveFunc 在每个 Node 执行后回调，用于打点。
type ObserveFunc func(node Node, elapsed time.Duration, out int, err error)

// Pipeline 把推荐逻辑拆成可组合的 Node 链：Recall → Filter → ReRank。
type Pipeline struct {
	Nodes   []Node
	Observe ObserveFunc
}

func (p *Pipeline) Run(
	ctx context.Context,
	rctx *RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	cur := items
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		next, err := node.Process(ctx, rctx, cur)
		if p.Observe != nil {
			p.Observe(node, time.Since(start), len(next), err)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", node.Name(), err)
		}
		cur = next
	}
	return cur, nil
}
