package orm

import (
	"fmt"

	"colorm/errors"
)

// 哨兵错误按错误码比较，可直接用于 errors.Is。
var (
	// ErrIdentityImmutable 托管实体的主键 setter 被调用
	ErrIdentityImmutable = errors.NewError(errors.ErrCodeIdentityImmutable, "orm: primary key of a managed entity is immutable")
	// ErrNotManaged 仅代理可用的操作作用在普通实例上
	ErrNotManaged = errors.NewError(errors.ErrCodeNotManaged, "orm: entity is not managed")
	// ErrUnsupportedMutation 只能通过专用句柄修改的属性被直接赋值
	ErrUnsupportedMutation = errors.NewError(errors.ErrCodeUnsupportedMutation, "orm: property must be mutated through its handle")
	// ErrValidation 实体/元数据为空或无法解析
	ErrValidation = errors.NewError(errors.ErrCodeValidation, "orm: validation failed")
	// ErrPropagatedIO Loader/Persister 抛出的失败
	ErrPropagatedIO = errors.NewError(errors.ErrCodePropagatedIO, "orm: loader/persister failure")
	// ErrNotFound 表示记录未找到
	ErrNotFound = errors.NewError(errors.ErrCodeNotFound, "orm: record not found")
	// ErrUnsupported 表示当前存储不支持请求的能力
	ErrUnsupported = errors.NewError(errors.ErrCodeUnsupported, "orm: capability unsupported")
)

// Validationf 构造带说明的校验错误
func Validationf(format string, args ...any) error {
	return errors.NewError(errors.ErrCodeValidation, "orm: "+fmt.Sprintf(format, args...))
}

// WrapIO 把外部协作者的失败包装为 PROPAGATED_IO，附带操作名与详情
func WrapIO(err error, operation string, details map[string]any) error {
	if err == nil {
		return nil
	}
	wrapped := errors.WrapIO(err, "orm: "+operation)
	if appErr, ok := wrapped.(errors.IError); ok && len(details) > 0 {
		return appErr.WithDetails(details)
	}
	return wrapped
}
