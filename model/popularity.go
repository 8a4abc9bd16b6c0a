package model

import (
	"sort"

	"github.com/rushteam/shoprec/core"
)

// PopularityScale 把热度换算为推荐分：score = popularity / 10
const PopularityScale = 10.0

// BuildPopularity 计算目录内每个商品的热度：加购出现次数 + 3 × 订单出现次数。
// 结果覆盖全部商品（含零热度），按分数降序、ID 升序排列。
func BuildPopularity(products []core.Product, interactions []core.Interaction) []core.Recommendation {
	counts := make(map[string]float64, len(products))
	for _, p := range products {
		counts[p.ID] = 0
	}
	for _, it := range interactions {
		if _, ok := counts[it.ProductID]; !ok {
			continue
		}
		switch it.Kind {
		case core.InteractionCart:
			counts[it.ProductID] += core.CartWeight
		case core.InteractionOrder:
			counts[it.ProductID] += core.OrderWeight
		}
	}

	out := make([]core.Recommendation, 0, len(counts))
	for id, pop := range counts {
		out = append(out, core.Recommendation{ProductID: id, Score: pop / PopularityScale})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// BuildOwnership 汇总每个用户加购或下单过的商品
func BuildOwnership(interactions []core.Interaction) map[string]map[string]struct{} {
	owned := make(map[string]map[string]struct{})
	for _, it := range interactions {
		if !it.Owned() || it.UserID == "" {
			continue
		}
		set, ok := owned[it.UserID]
		if !ok {
			set = make(map[string]struct{})
			owned[it.UserID] = set
		}
		set[it.ProductID] = struct{}{}
	}
	return owned
}
