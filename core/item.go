package core

import "github.com/rushteam/shoprec/pkg/utils"

// LabelRecallSource 记录候选来自哪些召回源。
const LabelRecallSource = "recall_source"

// Item 是推荐链路中的统一承载结构：分数、元信息、标签。
// Labels 用于解释与策略驱动；Score 用于排序决策。
type Item struct {
	ID     string
	Score  float64
	Meta   map[string]any
	Labels map[string]utils.Label
}

func NewItem(id string) *Item {
	return &Item{
		ID:     id,
		Meta:   make(map[string]any),
		Labels: make(map[string]utils.Label),
	}
}

// PutLabel 写入 Label；若已存在同名 key，则按默认 Merge 规则累积。
func (it *Item) PutLabel(key string, lbl utils.Label) {
	if it.Labels == nil {
		it.Labels = make(map[string]utils.Label)
	}
	if old, ok := it.Labels[key]; ok {
		it.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	it.Labels[key] = lbl
}

// Sources 返回贡献过该候选的召回源名称。
func (it *Item) Sources() []string {
	return it.Labels[LabelRecallSource].Values()
}

// Recommendation 转换为对外结果。
func (it *Item) Recommendation() Recommendation {
	return Recommendation{
		ProductID: it.ID,
		Score:     it.Score,
		Sources:   it.Sources(),
	}
}
