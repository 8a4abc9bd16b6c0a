package rerank

import (
	"context"
	"sort"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
)

// ScoreSortNode 按分数降序排列，同分按商品 ID 升序，保证结果确定。
type ScoreSortNode struct{}

func (n *ScoreSortNode) Name() string {
	return "rerank.score_sort"
}

func (n *ScoreSortNode) Kind() pipeline.Kind {
	return pipeline.KindReRank
}

func (n *ScoreSortNode) Process(
	_ context.Context,
	_ *pipeline.RecommendContext,
	items []*core.Item,
) ([]*core.Item, error) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}
