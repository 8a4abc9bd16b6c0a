package recall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rushteam/shoprec/core"
	"github.com/rushteam/shoprec/pipeline"
	"github.com/rushteam/shoprec/pkg/utils"
)

// MergeStrategy 决定同一商品多条候选的合并方式
type MergeStrategy string

const (
	// MergeMean 取所有贡献分数的算术平均（默认）
	MergeMean MergeStrategy = "mean"
	// MergeFirst 保留第一条出现的候选（按 Sources 顺序）
	MergeFirst MergeStrategy = "first"
)

// SourceObserver 在每个召回源结束后回调（用于日志/打点）
type SourceObserver func(source string, items int, elapsed time.Duration, err error)

// Fanout 是一个 Recall Node：并发执行多个召回源，并合并结果。
// 召回源失败或超时按空结果处理，不中断其他召回源，并把 rctx.Degraded 置为 true；
// 所有召回源都失败时返回 core.ErrRecallUnavailable；
// 模型层错误（未训练、未知商品）直接返回给调用方。
type Fanout struct {
	Sources       []Source
	Timeout       time.Duration // 每个召回源的超时时间
	MaxConcurrent int           // 最大并发数（0 表示无限制）
	MergeStrategy MergeStrategy
	OnSource      SourceObserver
}

func (n *Fanout) Name() string        { return "recall.fanout" }
func (n *Fanout) Kind() pipeline.Kind { return pipeline.KindRecall }

func (n *Fanout) Process(
	ctx context.Context,
	rctx *pipeline.RecommendContext,
	_ []*core.Item,
) ([]*core.Item, error) {
	if len(n.Sources) == 0 {
		return nil, nil
	}

	results := make([][]*core.Item, len(n.Sources))
	failures := make([]error, len(n.Sources))
	eg, egCtx := errgroup.WithContext(ctx)
	if n.MaxConcurrent > 0 {
		eg.SetLimit(n.MaxConcurrent)
	}

	for i, src := range n.Sources {
		i, src := i, src
		eg.Go(func() error {
			recallCtx := egCtx
			if n.Timeout > 0 {
				var cancel context.CancelFunc
				recallCtx, cancel = context.WithTimeout(egCtx, n.Timeout)
				defer cancel()
			}

			start := time.Now()
			items, err := src.Recall(recallCtx, rctx)
			if n.OnSource != nil {
				n.OnSource(src.Name(), len(items), time.Since(start), err)
			}
			if err != nil {
				if isModelError(err) {
					return err
				}
				failures[i] = fmt.Errorf("%s: %w", src.Name(), err)
				return nil
			}
			results[i] = items
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := n.degraded(rctx, failures); err != nil {
		return nil, err
	}

	switch n.MergeStrategy {
	case MergeFirst:
		return mergeFirst(results), nil
	default:
		return mergeMean(results), nil
	}
}

// degraded 在有召回源失败时标记 rctx；全部失败时返回 core.ErrRecallUnavailable。
func (n *Fanout) degraded(rctx *pipeline.RecommendContext, failures []error) error {
	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	if failed == 0 {
		return nil
	}
	if rctx != nil {
		rctx.Degraded = true
	}
	if failed == len(failures) {
		return fmt.Errorf("%w: %w", core.ErrRecallUnavailable, errors.Join(failures...))
	}
	return nil
}

func isModelError(err error) bool {
	domainErr := core.GetDomainError(err)
	return domainErr != nil && domainErr.Module == core.ModuleModel
}

// mergeMean 按商品 ID 合并，分数为所有贡献的平均值，保持首次出现顺序。
func mergeMean(results [][]*core.Item) []*core.Item {
	type acc struct {
		item  *core.Item
		sum   float64
		count int
		seen  map[string]struct{}
	}
	byID := make(map[string]*acc)
	order := make([]string, 0)

	for _, items := range results {
		for _, it := range items {
			if it == nil {
				continue
			}
			a, ok := byID[it.ID]
			if !ok {
				a = &acc{item: core.NewItem(it.ID), seen: make(map[string]struct{})}
				byID[it.ID] = a
				order = append(order, it.ID)
			}
			a.sum += it.Score
			a.count++
			for _, src := range it.Sources() {
				if _, dup := a.seen[src]; dup {
					continue
				}
				a.seen[src] = struct{}{}
				a.item.PutLabel(core.LabelRecallSource, utils.Label{Value: src, Source: "recall"})
			}
		}
	}

	out := make([]*core.Item, 0, len(order))
	for _, id := range order {
		a := byID[id]
		a.item.Score = a.sum / float64(a.count)
		a.item.Meta["contributions"] = a.count
		out = append(out, a.item)
	}
	return out
}

// mergeFirst 按 ID 去重，保留第一个出现的。
func mergeFirst(results [][]*core.Item) []*core.Item {
	seen := make(map[string]*core.Item)
	out := make([]*core.Item, 0)
	for _, items := range results {
		for _, it := range items {
			if it == nil {
				continue
			}
			if old, ok := seen[it.ID]; ok {
				for k, v := range it.Labels {
					old.PutLabel(k, v)
				}
				continue
			}
			seen[it.ID] = it
			out = append(out, it)
		}
	}
	return out
}
