package feature

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxFeatures 是 TF-IDF 词表的默认上限
const DefaultMaxFeatures = 100

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}_]{2,}`)

// Tokenize 小写化并切分出长度 >= 2 的词。
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// TFIDFVectorizer 将文本转换为 L2 归一化的 TF-IDF 向量。
//
// 规则：
//   - 词表按语料总词频取前 MaxFeatures 个（同频按字典序）
//   - idf = ln((1+n)/(1+df)) + 1
//   - tf 为原始词频
//
// 示例：
//
//	v := feature.NewTFIDFVectorizer(feature.WithMaxFeatures(50))
//	m := v.FitTransform(docs)
type TFIDFVectorizer struct {
	maxFeatures int
	stopWords   map[string]struct{}

	vocab []string
	index map[string]int
	idf   []float64
}

// TFIDFOption 配置 TFIDFVectorizer
type TFIDFOption func(*TFIDFVectorizer)

// WithMaxFeatures 设置词表上限，<= 0 表示不限制
func WithMaxFeatures(n int) TFIDFOption {
	return func(v *TFIDFVectorizer) {
		v.maxFeatures = n
	}
}

// WithStopWords 替换停用词表，传 nil 表示不过滤
func WithStopWords(words []string) TFIDFOption {
	return func(v *TFIDFVectorizer) {
		v.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			v.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

func NewTFIDFVectorizer(opts ...TFIDFOption) *TFIDFVectorizer {
	v := &TFIDFVectorizer{maxFeatures: DefaultMaxFeatures}
	WithStopWords(EnglishStopWords)(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *TFIDFVectorizer) tokens(doc string) []string {
	raw := Tokenize(doc)
	out := raw[:0]
	for _, tok := range raw {
		if _, stop := v.stopWords[tok]; stop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// Fit 在 docs 上学习词表与 idf。
func (v *TFIDFVectorizer) Fit(docs []string) {
	termFreq := make(map[string]int)
	docFreq := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, tok := range v.tokens(doc) {
			termFreq[tok]++
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				docFreq[tok]++
			}
		}
	}

	terms := make([]string, 0, len(termFreq))
	for term := range termFreq {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if termFreq[terms[i]] != termFreq[terms[j]] {
			return termFreq[terms[i]] > termFreq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		terms = terms[:v.maxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.vocab = terms
	v.index = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.index[term] = i
		v.idf[i] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
}

// Vocabulary 返回学习到的词表（字典序）
func (v *TFIDFVectorizer) Vocabulary() []string {
	return v.vocab
}

// Transform 将 docs 转为 len(docs) × len(vocab) 的矩阵。
// 词表为空时返回 nil。
func (v *TFIDFVectorizer) Transform(docs []string) *mat.Dense {
	if len(v.vocab) == 0 || len(docs) == 0 {
		return nil
	}
	out := mat.NewDense(len(docs), len(v.vocab), nil)
	row := make([]float64, len(v.vocab))
	for i, doc := range docs {
		for j := range row {
			row[j] = 0
		}
		for _, tok := range v.tokens(doc) {
			if j, ok := v.index[tok]; ok {
				row[j]++
			}
		}
		floats.Mul(row, v.idf)
		if norm := floats.Norm(row, 2); norm > 0 {
			floats.Scale(1/norm, row)
		}
		out.SetRow(i, row)
	}
	return out
}

// FitTransform 等价于 Fit + Transform
func (v *TFIDFVectorizer) FitTransform(docs []string) *mat.Dense {
	v.Fit(docs)
	return v.Transform(docs)
}
