package core

// Product 是商品目录中的一条记录。
type Product struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description" yaml:"description"`
	Category    string  `json:"category" yaml:"category"`
	Price       float64 `json:"price" yaml:"price"`
	Stock       int     `json:"stock" yaml:"stock"`
}

// Text 返回参与 TF-IDF 的文本：名称 + 描述 + 类目。
func (p Product) Text() string {
	return p.Name + " " + p.Description + " " + p.Category
}

// InteractionKind 标记交互来源。
type InteractionKind string

const (
	InteractionCart   InteractionKind = "cart"
	InteractionOrder  InteractionKind = "order"
	InteractionReview InteractionKind = "review"
)

// 交互强度权重
const (
	CartWeight  = 1.0
	OrderWeight = 3.0
)

// Interaction 是一条用户-商品交互，Strength 已按来源加权。
type Interaction struct {
	UserID    string          `json:"user_id"`
	ProductID string          `json:"product_id"`
	Strength  float64         `json:"strength"`
	Kind      InteractionKind `json:"kind"`
}

// NewInteraction 按来源计算强度：
//   - cart: quantity
//   - order: 3 × quantity
//   - review: rating（quantity 即评分）
func NewInteraction(userID, productID string, kind InteractionKind, quantity float64) Interaction {
	strength := quantity
	switch kind {
	case InteractionCart:
		strength = CartWeight * quantity
	case InteractionOrder:
		strength = OrderWeight * quantity
	}
	return Interaction{
		UserID:    userID,
		ProductID: productID,
		Strength:  strength,
		Kind:      kind,
	}
}

// Owned 表示该交互是否说明用户已拥有商品（加购或下单）。
func (i Interaction) Owned() bool {
	return i.Kind == InteractionCart || i.Kind == InteractionOrder
}

// Purchase 是一条非取消订单中的购买记录，用于离线评估。
type Purchase struct {
	UserID    string `json:"user_id"`
	ProductID string `json:"product_id"`
}

// Recommendation 是推荐结果中的一项。
type Recommendation struct {
	ProductID string   `json:"product_id"`
	Score     float64  `json:"score"`
	Sources   []string `json:"sources,omitempty"`
}

// SimilarProduct 是相似商品结果中的一项。
type SimilarProduct struct {
	ProductID  string  `json:"product_id"`
	Similarity float64 `json:"similarity"`
}
