package feature

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// FeatureStatistics 特征统计信息（用于标准化）
type FeatureStatistics struct {
	Mean float64
	Std  float64 // 总体标准差
	Min  float64
	Max  float64
}

// ComputeStatistics 计算特征统计信息
func ComputeStatistics(values []float64) *FeatureStatistics {
	if len(values) == 0 {
		return &FeatureStatistics{}
	}
	mean, std := stat.PopMeanStdDev(values, nil)
	return &FeatureStatistics{
		Mean: mean,
		Std:  std,
		Min:  floats.Min(values),
		Max:  floats.Max(values),
	}
}

// ZScoreNormalizer Z-score 标准化（Standardization）
// 公式: z = (x - μ) / σ
// σ 为 0 时所有值都标准化为 0
type ZScoreNormalizer struct {
	Mean float64
	Std  float64
}

// NewZScoreNormalizer 由统计信息创建 Z-score 标准化器
func NewZScoreNormalizer(stats *FeatureStatistics) *ZScoreNormalizer {
	return &ZScoreNormalizer{
		Mean: stats.Mean,
		Std:  stats.Std,
	}
}

// NormalizeValue 标准化单个值
func (n *ZScoreNormalizer) NormalizeValue(value float64) float64 {
	if n.Std > 0 {
		return (value - n.Mean) / n.Std
	}
	return 0
}

// NormalizeAll 标准化整列
func (n *ZScoreNormalizer) NormalizeAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = n.NormalizeValue(v)
	}
	return out
}
