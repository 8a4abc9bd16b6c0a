// Package eval 用最近的真实订单粗略评估推荐效果。
//
// 取最近 SampleSize 条非取消订单行，按用户聚合购买过的商品，
// 向推荐器要 TopN 条推荐，准确率 = Σ 命中数 / Σ 购买商品数。
// 没有可用订单时返回中性值 Neutral；结果上限为 Ceiling。
//
// 注意：被评估的订单同样参与了训练，这是自洽性检查，不是离线留出评估。
package eval

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/metrics"
)

const (
	DefaultSampleSize = 100
	DefaultTopN       = 20
	DefaultNeutral     = 0.8
	DefaultCeiling     = 0.95
	DefaultLoadTimeout = 30 * time.Second
)

// Settings 评估参数，零值字段使用默认值。Neutral 超过 Ceiling 时按 Ceiling 计。
type Settings struct {
	SampleSize int     `koanf:"sample_size"`
	TopN       int     `koanf:"top_n"`
	Neutral    float64 `koanf:"neutral"`
	Ceiling    float64 `koanf:"ceiling"`

	// LoadTimeout 读取最近订单的超时
	LoadTimeout time.Duration `koanf:"load_timeout"`
}

// DefaultSettings 返回默认评估参数
func DefaultSettings() Settings {
	return Settings{
		SampleSize:  DefaultSampleSize,
		TopN:        DefaultTopN,
		Neutral:     DefaultNeutral,
		Ceiling:     DefaultCeiling,
		LoadTimeout: DefaultLoadTimeout,
	}
}

func (s Settings) withDefaults() Settings {
	d := DefaultSettings()
	if s.SampleSize <= 0 {
		s.SampleSize = d.SampleSize
	}
	if s.TopN <= 0 {
		s.TopN = d.TopN
	}
	if s.Neutral <= 0 {
		s.Neutral = d.Neutral
	}
	if s.Ceiling <= 0 {
		s.Ceiling = d.Ceiling
	}
	if s.LoadTimeout <= 0 {
		s.LoadTimeout = d.LoadTimeout
	}
	return s
}

// Recommender 是被评估的推荐器
type Recommender interface {
	Recommend(ctx context.Context, userID string, count int) ([]core.Recommendation, error)
}

// Report 一次评估的明细
type Report struct {
	Accuracy     float64 `json:"accuracy"`      // 截断后的结果，始终在 [0, Ceiling]
	RawAccuracy  float64 `json:"raw_accuracy"`  // 截断前
	Users        int     `json:"users"`         // 参与评估的用户数
	Hits         int     `json:"hits"`          // 命中的 (用户, 商品) 数
	Purchased    int     `json:"purchased"`     // 购买过的 (用户, 商品) 数
	Neutral      bool    `json:"neutral"`       // 没有订单，返回的是中性值
	ModelVersion string  `json:"model_version"` // 由调用方填写
}

// Evaluator 计算推荐准确率
type Evaluator struct {
	Purchases   core.PurchaseReader
	Recommender Recommender
	Settings    Settings
	Logger      zerolog.Logger
}

// Evaluate 执行一次评估。推荐器返回的错误原样向上传递（包括 core.ErrNotReady）。
func (e *Evaluator) Evaluate(ctx context.Context) (Report, error) {
	s := e.Settings.withDefaults()

	purchases, err := e.loadPurchases(ctx, s)
	if err != nil {
		return Report{}, fmt.Errorf("load recent purchases: %w", err)
	}

	users, bought := groupByUser(purchases)
	if len(users) == 0 {
		report := Report{Accuracy: min(s.Neutral, s.Ceiling), RawAccuracy: s.Neutral, Neutral: true}
		e.finish(report)
		return report, nil
	}

	report := Report{Users: len(users)}
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return Report{}, err
		}
		recs, err := e.Recommender.Recommend(ctx, userID, s.TopN)
		if err != nil {
			return Report{}, fmt.Errorf("recommend for %s: %w", userID, err)
		}
		products := bought[userID]
		for _, r := range recs {
			if _, ok := products[r.ProductID]; ok {
				report.Hits++
			}
		}
		report.Purchased += len(products)
	}

	report.RawAccuracy = float64(report.Hits) / float64(report.Purchased)
	report.Accuracy = min(report.RawAccuracy, s.Ceiling)
	e.finish(report)
	return report, nil
}

func (e *Evaluator) loadPurchases(ctx context.Context, s Settings) ([]core.Purchase, error) {
	ctx, cancel := context.WithTimeout(ctx, s.LoadTimeout)
	defer cancel()
	return e.Purchases.RecentPurchases(ctx, s.SampleSize)
}

func (e *Evaluator) finish(r Report) {
	metrics.EvaluationAccuracy.Set(r.Accuracy)
	e.Logger.Info().
		Float64("accuracy", r.Accuracy).
		Float64("raw_accuracy", r.RawAccuracy).
		Int("users", r.Users).
		Int("hits", r.Hits).
		Int("purchased", r.Purchased).
		Bool("neutral", r.Neutral).
		Msg("evaluation complete")
}

// groupByUser 按首次出现顺序返回用户，以及每个用户购买过的商品集合。
func groupByUser(purchases []core.Purchase) ([]string, map[string]map[string]struct{}) {
	users := make([]string, 0)
	bought := make(map[string]map[string]struct{})
	for _, p := range purchases {
		if p.UserID == "" || p.ProductID == "" {
			continue
		}
		set, ok := bought[p.UserID]
		if !ok {
			set = make(map[string]struct{})
			bought[p.UserID] = set
			users = append(users, p.UserID)
		}
		set[p.ProductID] = struct{}{}
	}
	return users, bought
}
