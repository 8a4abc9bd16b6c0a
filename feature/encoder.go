package feature

import (
	"gonum.org/v1/gonum/mat"

	"github.com/rushteam/shoprec/core"
)

// ProductEncoder 把商品编码为内容特征：
// [TF-IDF(name + description + category) ..., zscore(price)]
//
// 价格统计只来自本次编码的商品集合，所以维度与尺度随每次训练固定。
type ProductEncoder struct {
	opts []TFIDFOption

	vectorizer *TFIDFVectorizer
	price      *ZScoreNormalizer
}

func NewProductEncoder(opts ...TFIDFOption) *ProductEncoder {
	return &ProductEncoder{opts: opts}
}

// Encode 返回 len(products) × (len(vocab)+1) 的特征矩阵，products 为空时返回 nil。
func (e *ProductEncoder) Encode(products []core.Product) *mat.Dense {
	if len(products) == 0 {
		return nil
	}

	docs := make([]string, len(products))
	prices := make([]float64, len(products))
	for i, p := range products {
		docs[i] = p.Text()
		prices[i] = p.Price
	}

	e.vectorizer = NewTFIDFVectorizer(e.opts...)
	text := e.vectorizer.FitTransform(docs)
	e.price = NewZScoreNormalizer(ComputeStatistics(prices))
	scaled := e.price.NormalizeAll(prices)

	cols := 1
	if text != nil {
		_, cols = text.Dims()
		cols++
	}
	out := mat.NewDense(len(products), cols, nil)
	if text != nil {
		out.Slice(0, len(products), 0, cols-1).(*mat.Dense).Copy(text)
	}
	out.SetCol(cols-1, scaled)
	return out
}

// Vocabulary 返回最近一次 Encode 学到的词表
func (e *ProductEncoder) Vocabulary() []string {
	if e.vectorizer == nil {
		return nil
	}
	return e.vectorizer.Vocabulary()
}
