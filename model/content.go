package model

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/feature"
)

// ContentModel 是商品 × 商品的内容相似度矩阵。
// 训练完成后只读，可被并发访问。
type ContentModel struct {
	ids   []string
	index map[string]int
	sim   *mat.SymDense
	vocab []string
}

// TrainContent 以商品文本 TF-IDF + 标准化价格为特征，计算全量余弦相似度。
// 重复 ID 只保留第一次出现的商品；商品为空时返回 core.ErrNoData。
func TrainContent(products []core.Product, opts ...feature.TFIDFOption) (*ContentModel, error) {
	products = dedupProducts(products)
	if len(products) == 0 {
		return nil, core.ErrNoData
	}

	enc := feature.NewProductEncoder(opts...)
	features := enc.Encode(products)

	n, dim := features.Dims()
	normed := mat.NewDense(n, dim, nil)
	row := make([]float64, dim)
	for i := 0; i < n; i++ {
		mat.Row(row, i, features)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		normed.SetRow(i, row)
	}

	var sim mat.SymDense
	sim.SymOuterK(1, normed)
	for i := 0; i < n; i++ {
		sim.SetSym(i, i, 1)
		for j := i + 1; j < n; j++ {
			sim.SetSym(i, j, clamp(sim.At(i, j), -1, 1))
		}
	}

	m := &ContentModel{
		ids:   make([]string, n),
		index: make(map[string]int, n),
		sim:   &sim,
		vocab: enc.Vocabulary(),
	}
	for i, p := range products {
		m.ids[i] = p.ID
		m.index[p.ID] = i
	}
	return m, nil
}

func dedupProducts(products []core.Product) []core.Product {
	seen := make(map[string]struct{}, len(products))
	out := make([]core.Product, 0, len(products))
	for _, p := range products {
		if p.ID == "" {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}

// Len 返回商品数
func (m *ContentModel) Len() int { return len(m.ids) }

// IDs 返回矩阵行对应的商品 ID
func (m *ContentModel) IDs() []string { return m.ids }

// Vocabulary 返回训练时的 TF-IDF 词表
func (m *ContentModel) Vocabulary() []string { return m.vocab }

// Index 返回商品在矩阵中的下标
func (m *ContentModel) Index(productID string) (int, bool) {
	i, ok := m.index[productID]
	return i, ok
}

// Similarity O(1) 读取两个商品的相似度，任一商品未知时 ok 为 false。
func (m *ContentModel) Similarity(a, b string) (float64, bool) {
	i, ok := m.index[a]
	if !ok {
		return 0, false
	}
	j, ok := m.index[b]
	if !ok {
		return 0, false
	}
	return m.sim.At(i, j), true
}

// At 按下标读取相似度
func (m *ContentModel) At(i, j int) float64 {
	return m.sim.At(i, j)
}

// Neighbors 返回与 productID 相似度 > threshold 的其他商品，
// 按相似度降序、ID 升序排列，结果中不含 productID 自身。
func (m *ContentModel) Neighbors(productID string, threshold float64) ([]core.SimilarProduct, error) {
	i, ok := m.index[productID]
	if !ok {
		return nil, core.ErrUnknownProduct
	}
	out := make([]core.SimilarProduct, 0)
	for j, id := range m.ids {
		if j == i {
			continue
		}
		if s := m.sim.At(i, j); s > threshold {
			out = append(out, core.SimilarProduct{ProductID: id, Similarity: s})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Similarity != out[b].Similarity {
			return out[a].Similarity > out[b].Similarity
		}
		return out[a].ProductID < out[b].ProductID
	})
	return out, nil
}
