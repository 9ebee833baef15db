package car

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 领域错误分类，对应对外暴露的 HTTP 状态族。
type Kind int

const (
	KindValidation Kind = iota // 400：入参/重叠区间/重复标识
	KindForbidden              // 403：非管理员
	KindNotFound               // 404：车辆或新车主不存在
	KindConflict               // 409：并发冲突（CAS 未命中）
	KindInternal               // 500：存储等意外失败
)

// DomainError 带分类的业务错误。校验/冲突通过它向调用方返回可见的 message，
// 不作为进程级异常向上抛。
type DomainError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &DomainError{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Forbiddenf(format string, args ...any) error {
	return &DomainError{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &DomainError{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) error {
	return &DomainError{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Internal 包装意外失败：对外只给笼统消息，细节留给服务端日志。
func Internal(err error) error {
	return &DomainError{Kind: KindInternal, Message: "Something went wrong", Err: err}
}

// KindOf 提取错误分类；非 DomainError 一律按 internal 处理。
func KindOf(err error) Kind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// PublicMessage 提取对外可见的消息。
func PublicMessage(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return "Something went wrong"
}

// HTTPStatus 错误分类到 HTTP 状态码的映射。
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
