package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/feature"
)

// Bundle 是一次训练的完整产物，发布后只读。
// 请求在开始时取一次 Bundle 指针并全程使用，训练不会影响进行中的请求。
type Bundle struct {
	Version   string
	TrainedAt time.Time

	Content      *ContentModel
	Interactions *InteractionMatrix // nil 表示本轮跳过协同过滤
	Popular      []core.Recommendation

	catalog map[string]core.Product
	owned   map[string]map[string]struct{}
}

// NewBundle 由商品目录与交互构建新模型。
// 引用目录外商品的交互会被丢弃；商品为空时返回 core.ErrNoData。
func NewBundle(products []core.Product, interactions []core.Interaction, opts ...feature.TFIDFOption) (*Bundle, error) {
	content, err := TrainContent(products, opts...)
	if err != nil {
		return nil, err
	}

	catalog := make(map[string]core.Product, content.Len())
	for _, p := range products {
		if _, ok := catalog[p.ID]; !ok && p.ID != "" {
			catalog[p.ID] = p
		}
	}

	known := make([]core.Interaction, 0, len(interactions))
	for _, it := range interactions {
		if _, ok := catalog[it.ProductID]; ok {
			known = append(known, it)
		}
	}

	catalogList := make([]core.Product, 0, len(catalog))
	for _, id := range content.IDs() {
		catalogList = append(catalogList, catalog[id])
	}

	return &Bundle{
		Version:      uuid.NewString(),
		TrainedAt:    time.Now(),
		Content:      content,
		Interactions: BuildInteractionMatrix(known),
		Popular:      BuildPopularity(catalogList, known),
		catalog:      catalog,
		owned:        BuildOwnership(known),
	}, nil
}

// CollaborativeEnabled 本轮是否有交互矩阵
func (b *Bundle) CollaborativeEnabled() bool {
	return b.Interactions != nil
}

// Product 查找目录中的商品
func (b *Bundle) Product(id string) (core.Product, bool) {
	p, ok := b.catalog[id]
	return p, ok
}

// ProductCount 返回目录商品数
func (b *Bundle) ProductCount() int {
	return len(b.catalog)
}

// UserCount 返回交互矩阵中的用户数
func (b *Bundle) UserCount() int {
	if b.Interactions == nil {
		return 0
	}
	users, _ := b.Interactions.Dims()
	return users
}

// Owned 返回用户加购或下单过的商品集合，调用方不得修改
func (b *Bundle) Owned(userID string) map[string]struct{} {
	return b.owned[userID]
}

// Owns 用户是否已拥有商品
func (b *Bundle) Owns(userID, productID string) bool {
	_, ok := b.owned[userID][productID]
	return ok
}

// Popularity 返回热度榜前 n 个，n <= 0 返回全部
func (b *Bundle) Popularity(n int) []core.Recommendation {
	if n <= 0 || n > len(b.Popular) {
		n = len(b.Popular)
	}
	out := make([]core.Recommendation, n)
	copy(out, b.Popular[:n])
	return out
}
