// Package datasource 提供训练与评估所需的上游数据。
//
// Snapshot 是电商库的一份内存副本（商品、购物车、订单、评价），
// 可以直接构造，也可以从 YAML 文件加载；postgres 子包直接读数据库。
// 两者从原始记录推导交互的规则相同：
//   - 购物车行：强度 = 数量
//   - 非取消订单行：强度 = 3 × 数量
//   - 评价：强度 = 评分
package datasource

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/shoprec/core"
)

// OrderStatusCancelled 取消的订单不参与交互与评估，比较时不区分大小写
const OrderStatusCancelled = "cancelled"

// LineItem 是购物车或订单中的一行
type LineItem struct {
	ProductID string  `yaml:"product_id" json:"product_id"`
	Quantity  float64 `yaml:"quantity" json:"quantity"`
}

// Cart 用户购物车
type Cart struct {
	ID     string     `yaml:"id" json:"id"`
	UserID string     `yaml:"user_id" json:"user_id"`
	Items  []LineItem `yaml:"items" json:"items"`
}

// Order 用户订单
type Order struct {
	ID        string     `yaml:"id" json:"id"`
	UserID    string     `yaml:"user_id" json:"user_id"`
	Status    string     `yaml:"status" json:"status"`
	CreatedAt time.Time  `yaml:"created_at" json:"created_at"`
	Items     []LineItem `yaml:"items" json:"items"`
}

// Cancelled 订单是否已取消
func (o Order) Cancelled() bool {
	return strings.EqualFold(o.Status, OrderStatusCancelled)
}

// Review 用户评价
type Review struct {
	UserID    string  `yaml:"user_id" json:"user_id"`
	ProductID string  `yaml:"product_id" json:"product_id"`
	Rating    float64 `yaml:"rating" json:"rating"`
}

// Snapshot 是一份完整的电商数据
type Snapshot struct {
	Products []core.Product `yaml:"products" json:"products"`
	Carts    []Cart         `yaml:"carts" json:"carts"`
	Orders   []Order        `yaml:"orders" json:"orders"`
	Reviews  []Review       `yaml:"reviews" json:"reviews"`
}

// Interactions 从原始记录推导交互
func (s Snapshot) Interactions() []core.Interaction {
	out := make([]core.Interaction, 0)
	for _, c := range s.Carts {
		for _, it := range c.Items {
			out = append(out, core.NewInteraction(c.UserID, it.ProductID, core.InteractionCart, it.Quantity))
		}
	}
	for _, o := range s.Orders {
		if o.Cancelled() {
			continue
		}
		for _, it := range o.Items {
			out = append(out, core.NewInteraction(o.UserID, it.ProductID, core.InteractionOrder, it.Quantity))
		}
	}
	for _, r := range s.Reviews {
		out = append(out, core.NewInteraction(r.UserID, r.ProductID, core.InteractionReview, r.Rating))
	}
	return out
}

// RecentPurchases 返回非取消订单行，按订单时间倒序，最多 limit 条（<= 0 不限制）
func (s Snapshot) RecentPurchases(limit int) []core.Purchase {
	orders := make([]Order, 0, len(s.Orders))
	for _, o := range s.Orders {
		if !o.Cancelled() {
			orders = append(orders, o)
		}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})

	out := make([]core.Purchase, 0)
	for _, o := range orders {
		for _, it := range o.Items {
			if limit > 0 && len(out) >= limit {
				return out
			}
			out = append(out, core.Purchase{UserID: o.UserID, ProductID: it.ProductID})
		}
	}
	return out
}

// LoadSnapshotFile 从 YAML 文件加载 Snapshot
func LoadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot %s: %w", path, err)
	}
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return s, nil
}

// Memory 是基于 Snapshot 的 core.DataSource，可在两次训练之间整体替换数据。
type Memory struct {
	mu   sync.RWMutex
	name string
	snap Snapshot
}

// NewMemory 创建内存数据源
func NewMemory(s Snapshot) *Memory {
	return &Memory{name: "memory", snap: s}
}

// OpenFile 从 YAML 文件创建数据源，Reload 可重新读取文件
func OpenFile(path string) (*File, error) {
	f := &File{Memory: Memory{name: "file"}, path: path}
	if err := f.Reload(); err != nil {
		return nil, err
	}
	return f, nil
}

func (m *Memory) Name() string { return m.name }

// Replace 整体替换数据
func (m *Memory) Replace(s Snapshot) {
	m.mu.Lock()
	m.snap = s
	m.mu.Unlock()
}

// Snapshot 返回当前数据
func (m *Memory) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Memory) Products(ctx context.Context) ([]core.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.Snapshot()
	out := make([]core.Product, len(s.Products))
	copy(out, s.Products)
	return out, nil
}

func (m *Memory) Interactions(ctx context.Context) ([]core.Interaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Snapshot().Interactions(), nil
}

func (m *Memory) RecentPurchases(ctx context.Context, limit int) ([]core.Purchase, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.Snapshot().RecentPurchases(limit), nil
}

// File 是从 YAML 文件加载的数据源
type File struct {
	Memory
	path string
}

// Reload 重新读取文件；失败时保留之前的数据
func (f *File) Reload() error {
	s, err := LoadSnapshotFile(f.path)
	if err != nil {
		return err
	}
	f.Replace(s)
	return nil
}

// Path 返回文件路径
func (f *File) Path() string { return f.path }
