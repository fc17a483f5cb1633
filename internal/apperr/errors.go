// Package apperr 定义业务错误分类，供 service 返回、handler 映射为 HTTP/websocket 错误。
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindInsufficientFunds
	KindInvalidTransition
	KindTransientIO
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidTransition:
		return "invalid_transition"
	case KindTransientIO:
		return "transient_io"
	default:
		return "unknown"
	}
}

// 用于 errors.Is 的哨兵值
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrAuthorization     = &Error{Kind: KindAuthorization}
	ErrInsufficientFunds = &Error{Kind: KindInsufficientFunds}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrTransientIO       = &Error{Kind: KindTransientIO}
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Available 仅 InsufficientFunds 使用
	Available int64
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return e.Msg + ": " + e.Err.Error()
	case e.Msg != "":
		return e.Msg
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is 按 Kind 比较，使 errors.Is(err, apperr.ErrNotFound) 成立
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Authorization(format string, args ...any) error {
	return &Error{Kind: KindAuthorization, Msg: fmt.Sprintf(format, args...)}
}

func InvalidTransition(format string, args ...any) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientFunds 错误信息必须带出可结算金额
func InsufficientFunds(available, requested int64) error {
	return &Error{
		Kind:      KindInsufficientFunds,
		Msg:       fmt.Sprintf("requested %d exceeds available %d", requested, available),
		Available: available,
	}
}

// TransientIO 包装存储/投递失败
func TransientIO(err error, format string, args ...any) error {
	return &Error{Kind: KindTransientIO, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf 返回错误链上第一个 *Error 的 Kind
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// AvailableOf 取出 InsufficientFunds 携带的可结算金额
func AvailableOf(err error) (int64, bool) {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindInsufficientFunds {
		return e.Available, true
	}
	return 0, false
}
