package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/shoprec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("product", cel.DynType),
		cel.Variable("item", cel.DynType),
		cel.Variable("user", cel.DynType),
	)
}

func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译好的候选规则，使用 CEL (Common Expression Language) 语法。
// 编译一次，可被并发执行。
//
// 可用变量：
//   - product.id / product.name / product.category / product.price / product.stock
//   - item.score / item.sources
//   - user.id
//
// 示例：
//   - `product.stock > 0`
//   - `product.price < 500.0 && item.score > 0.2`
//   - `"collaborative" in item.sources`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式，表达式必须返回布尔值。
func Compile(expr string) (*Program, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile %q: expression must return bool, got %v", expr, out)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expr, err)
	}
	return &Program{expr: expr, prg: prg}, nil
}

// String 返回原始表达式
func (p *Program) String() string { return p.expr }

// Evaluate 对单个候选执行表达式。
func (p *Program) Evaluate(userID string, product core.Product, item *core.Item) (bool, error) {
	out, _, err := p.prg.Eval(BuildInput(userID, product, item))
	if err != nil {
		return false, fmt.Errorf("eval %q: %w", p.expr, err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("eval %q: expression must return bool, got %T", p.expr, out.Value())
	}
	return result, nil
}

// BuildInput 构建 CEL 表达式的输入数据
func BuildInput(userID string, product core.Product, item *core.Item) map[string]any {
	sources := []string{}
	score := 0.0
	if item != nil {
		score = item.Score
		if s := item.Sources(); s != nil {
			sources = s
		}
	}
	return map[string]any{
		"product": map[string]any{
			"id":          product.ID,
			"name":        product.Name,
			"description": product.Description,
			"category":    product.Category,
			"price":       product.Price,
			"stock":       int64(product.Stock),
		},
		"item": map[string]any{
			"score":   score,
			"sources": sources,
		},
		"user": map[string]any{
			"id": userID,
		},
	}
}
