package core

import "errors"

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）与 errors.Is
//
// 使用场景：
//   - Store 错误：NOT_FOUND
//   - Model 错误：NOT_READY, NO_DATA, NOT_FOUND
//   - Recall 错误：UNAVAILABLE
//   - Engine 错误：CONFLICT
type DomainError struct {
	Code    string // 错误代码（如 "NOT_FOUND", "NOT_READY"）
	Message string // 错误消息
	Module  string // 模块名称（如 "store", "model", "engine"）
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is 让 errors.Is 按 Module + Code 比较，包装后的错误同样可识别。
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Module == t.Module && e.Code == t.Code
}

// IsDomainError 检查错误链中是否存在 DomainError
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取错误链中的 DomainError，如果不存在则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// 错误代码常量
const (
	ErrorCodeNotFound    = "NOT_FOUND"   // 资源不存在
	ErrorCodeNotReady    = "NOT_READY"   // 模型尚未训练
	ErrorCodeNoData      = "NO_DATA"     // 训练数据为空
	ErrorCodeConflict    = "CONFLICT"    // 并发冲突
	ErrorCodeUnavailable = "UNAVAILABLE" // 依赖不可用
)

// 模块名称常量
const (
	ModuleStore  = "store"
	ModuleModel  = "model"
	ModuleRecall = "recall"
	ModuleEngine = "engine"
)

var (
	// ErrNotReady 表示还没有可用的训练结果
	ErrNotReady = NewDomainError(ModuleModel, ErrorCodeNotReady, "model: not trained")

	// ErrNoData 表示商品目录为空，无法训练
	ErrNoData = NewDomainError(ModuleModel, ErrorCodeNoData, "model: no products to train on")

	// ErrUnknownProduct 表示商品不在当前模型中
	ErrUnknownProduct = NewDomainError(ModuleModel, ErrorCodeNotFound, "model: unknown product")

	// ErrRecallUnavailable 表示本次请求的所有召回源都失败或超时
	ErrRecallUnavailable = NewDomainError(ModuleRecall, ErrorCodeUnavailable, "recall: no candidate source available")

	// ErrTrainingInProgress 表示已有训练在执行
	ErrTrainingInProgress = NewDomainError(ModuleEngine, ErrorCodeConflict, "engine: training already in progress")
)

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotFound
	}
	return false
}

// IsNotReady 检查错误是否为 NOT_READY
func IsNotReady(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNotReady
	}
	return false
}

// IsNoData 检查错误是否为 NO_DATA
func IsNoData(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeNoData
	}
	return false
}

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == ErrorCodeUnavailable
	}
	return false
}
