package model

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/shoprec/core"
)

// InteractionMatrix 是用户 × 商品的交互强度矩阵。
// 行为至少有一次交互的用户，列为至少被交互过一次的商品，均按 ID 升序。
type InteractionMatrix struct {
	users        []string
	userIndex    map[string]int
	products     []string
	productIndex map[string]int
	data         *mat.Dense
}

// UserSimilarity 是两个用户交互行之间的余弦相似度
type UserSimilarity struct {
	UserID     string
	Similarity float64
}

// BuildInteractionMatrix 按 (user, product) 汇总强度并透视成矩阵。
// 没有可用交互时返回 nil，调用方应跳过协同过滤。
func BuildInteractionMatrix(interactions []core.Interaction) *InteractionMatrix {
	type cell struct{ user, product string }
	sums := make(map[cell]float64)
	users := make(map[string]struct{})
	products := make(map[string]struct{})
	for _, it := range interactions {
		if it.UserID == "" || it.ProductID == "" || it.Strength < 0 {
			continue
		}
		sums[cell{it.UserID, it.ProductID}] += it.Strength
		users[it.UserID] = struct{}{}
		products[it.ProductID] = struct{}{}
	}
	if len(sums) == 0 {
		return nil
	}

	m := &InteractionMatrix{
		users:    sortedKeys(users),
		products: sortedKeys(products),
	}
	m.userIndex = indexOf(m.users)
	m.productIndex = indexOf(m.products)
	m.data = mat.NewDense(len(m.users), len(m.products), nil)
	for c, v := range sums {
		m.data.Set(m.userIndex[c.user], m.productIndex[c.product], v)
	}
	return m
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func indexOf(ids []string) map[string]int {
	idx := make(map[string]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}

// Dims 返回 (用户数, 商品数)
func (m *InteractionMatrix) Dims() (int, int) {
	return m.data.Dims()
}

// Users 返回行对应的用户 ID
func (m *InteractionMatrix) Users() []string { return m.users }

// Products 返回列对应的商品 ID
func (m *InteractionMatrix) Products() []string { return m.products }

// HasUser 用户是否在矩阵中
func (m *InteractionMatrix) HasUser(userID string) bool {
	_, ok := m.userIndex[userID]
	return ok
}

// Value 返回 (user, product) 的强度，不存在为 0
func (m *InteractionMatrix) Value(userID, productID string) float64 {
	i, ok := m.userIndex[userID]
	if !ok {
		return 0
	}
	j, ok := m.productIndex[productID]
	if !ok {
		return 0
	}
	return m.data.At(i, j)
}

// Row 返回用户交互行的拷贝
func (m *InteractionMatrix) Row(userID string) ([]float64, bool) {
	i, ok := m.userIndex[userID]
	if !ok {
		return nil, false
	}
	return mat.Row(nil, i, m.data), true
}

// SimilarUsers 计算 userID 与其他所有用户的余弦相似度，
// 跳过自身与相似度 < threshold 的用户，按相似度降序、ID 升序返回。
func (m *InteractionMatrix) SimilarUsers(userID string, threshold float64) []UserSimilarity {
	i, ok := m.userIndex[userID]
	if !ok {
		return nil
	}
	target := mat.Row(nil, i, m.data)
	targetNorm := floats.Norm(target, 2)
	if targetNorm == 0 {
		return nil
	}

	out := make([]UserSimilarity, 0)
	row := make([]float64, len(m.products))
	for j, other := range m.users {
		if j == i {
			continue
		}
		mat.Row(row, j, m.data)
		norm := floats.Norm(row, 2)
		if norm == 0 {
			continue
		}
		sim := floats.Dot(target, row) / (targetNorm * norm)
		if sim < threshold {
			continue
		}
		out = append(out, UserSimilarity{UserID: other, Similarity: sim})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Similarity != out[b].Similarity {
			return out[a].Similarity > out[b].Similarity
		}
		return out[a].UserID < out[b].UserID
	})
	return out
}
