package engine

import (
	"time"

	"github.com/rushteam/shoprec/feature"
	"github.com/rushteam/shoprec/recall"
)

// Settings 引擎参数，零值字段使用默认值。
type Settings struct {
	// Threshold 用户与商品相似度的最低阈值，取值 (0, 1)
	Threshold float64 `koanf:"threshold"`

	// CandidateMultiplier 每个召回源最多产出 count × CandidateMultiplier 条候选
	CandidateMultiplier int `koanf:"candidate_multiplier"`

	// MaxFeatures TF-IDF 词表上限
	MaxFeatures int `koanf:"max_features"`

	// KeepStopWords 为 true 时不过滤英文停用词
	KeepStopWords bool `koanf:"keep_stop_words"`

	DefaultRecommendCount int `koanf:"default_recommend_count"`
	DefaultSimilarCount   int `koanf:"default_similar_count"`

	// MaxCount 单次请求数量上限，超过时截断
	MaxCount int `koanf:"max_count"`

	// LoadTimeout 训练时读取上游数据的超时
	LoadTimeout time.Duration `koanf:"load_timeout"`

	// SourceTimeout 单个召回源的超时，超时按空结果处理
	SourceTimeout time.Duration `koanf:"source_timeout"`

	// MaxPerCategory 推荐与热度结果中每个类目最多出现的次数，0 不限制
	MaxPerCategory int `koanf:"max_per_category"`
}

// DefaultSettings 返回默认参数
func DefaultSettings() Settings {
	return Settings{
		Threshold:             recall.DefaultThreshold,
		CandidateMultiplier:   recall.DefaultCandidateMultiplier,
		MaxFeatures:           feature.DefaultMaxFeatures,
		DefaultRecommendCount: 10,
		DefaultSimilarCount:   5,
		MaxCount:              100,
		LoadTimeout:           30 * time.Second,
		SourceTimeout:         2 * time.Second,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.Threshold <= 0 {
		s.Threshold = d.Threshold
	}
	if s.CandidateMultiplier <= 0 {
		s.CandidateMultiplier = d.CandidateMultiplier
	}
	if s.MaxFeatures <= 0 {
		s.MaxFeatures = d.MaxFeatures
	}
	if s.DefaultRecommendCount <= 0 {
		s.DefaultRecommendCount = d.DefaultRecommendCount
	}
	if s.DefaultSimilarCount <= 0 {
		s.DefaultSimilarCount = d.DefaultSimilarCount
	}
	if s.MaxCount <= 0 {
		s.MaxCount = d.MaxCount
	}
	if s.LoadTimeout <= 0 {
		s.LoadTimeout = d.LoadTimeout
	}
	if s.SourceTimeout <= 0 {
		s.SourceTimeout = d.SourceTimeout
	}
	return s
}

func (s Settings) tfidfOptions() []feature.TFIDFOption {
	opts := []feature.TFIDFOption{feature.WithMaxFeatures(s.MaxFeatures)}
	if s.KeepStopWords {
		opts = append(opts, feature.WithStopWords(nil))
	}
	return opts
}

// count 规范化请求数量：<= 0 使用默认值，超过上限截断
func (s Settings) count(requested, fallback int) int {
	if requested <= 0 {
		requested = fallback
	}
	return min(requested, s.MaxCount)
}
