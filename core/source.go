package core

import "context"

// CatalogReader 读取完整商品目录。
type CatalogReader interface {
	Products(ctx context.Context) ([]Product, error)
}

// InteractionReader 读取加购、订单（非取消）与评价形成的交互。
type InteractionReader interface {
	Interactions(ctx context.Context) ([]Interaction, error)
}

// PurchaseReader 读取最近的非取消订单行，按订单时间倒序。
type PurchaseReader interface {
	RecentPurchases(ctx context.Context, limit int) ([]Purchase, error)
}

// DataSource 是训练与评估所需的全部上游数据。
//
// 实现：
//   - datasource.Snapshot（内存 / YAML 文件）
//   - datasource/postgres.Source
type DataSource interface {
	Name() string
	CatalogReader
	InteractionReader
	PurchaseReader
}
