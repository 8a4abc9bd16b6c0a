package pipeline

import (
	"github.com/rushteam/shoprec/model"
	"github.com/rushteam/shoprec/pkg/utils"
)

// RecommendContext 承载一次请求的用户、数量与模型快照，贯穿整个 Pipeline 透传。
type RecommendContext struct {
	UserID    string
	ProductID string // 相似商品请求的锚点商品
	Count     int

	// Model 在请求开始时取一次，整条链路使用同一个版本
	Model *model.Bundle

	// Labels 是请求级标签，可驱动 Node 行为
	Labels map[string]utils.Label

	// Degraded 为 true 表示有召回源失败或超时，结果不完整，不能写入缓存
	Degraded bool
}

// PutLabel 写入请求级 Label。
func (rctx *RecommendContext) PutLabel(key string, lbl utils.Label) {
	if rctx.Labels == nil {
		rctx.Labels = make(map[string]utils.Label)
	}
	if old, ok := rctx.Labels[key]; ok {
		rctx.Labels[key] = utils.MergeLabel(old, lbl)
		return
	}
	rctx.Labels[key] = lbl
}

// GetLabel 获取请求级 Label。
func (rctx *RecommendContext) GetLabel(key string) (utils.Label, bool) {
	if rctx.Labels == nil {
		return utils.Label{}, false
	}
	lbl, ok := rctx.Labels[key]
	return lbl, ok
}
