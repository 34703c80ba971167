package errors

import (
	"context"
	"fmt"
	"runtime"

	"colorm/logging"
)

// Wrap 包装错误，添加错误码和调用位置
// 建议：在存储适配器/生命周期边界使用
func Wrap(ctx context.Context, err error, code ErrorCode, msg string) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	logging.GetLogger().Debug(ctx, fmt.Sprintf("错误包装: %s (位置: %s:%d)", msg, file, line))
	return wrapped
}

// WrapWithLog 包装错误并记录警告日志
func WrapWithLog(ctx context.Context, err error, code ErrorCode, msg string, fields ...logging.Field) error {
	if err == nil {
		return nil
	}

	_, file, line, _ := runtime.Caller(1)
	wrapped := WrapError(err, code, msg)

	allFields := append([]logging.Field{
		logging.Error(err),
		logging.String("error_code", string(code)),
		logging.String("location", fmt.Sprintf("%s:%d", file, line)),
	}, fields...)
	logging.GetLogger().Warn(ctx, msg, allFields...)

	return wrapped
}

// WrapDatabaseError 包装数据库错误
// 已识别的未找到错误保持 NOT_FOUND，其余归为 DATABASE_ERROR
func WrapDatabaseError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	normalized := Normalize(err)
	if IsNotFound(normalized) {
		return WrapError(normalized, ErrCodeNotFound, operation)
	}

	return WrapWithLog(ctx, err, ErrCodeDatabase,
		fmt.Sprintf("数据库操作失败: %s", operation),
		logging.String("operation", operation),
	)
}

// WrapIO 将 Loader/Persister 等外部协作者的失败包装为 PROPAGATED_IO。
//
// 已经是 PROPAGATED_IO 的错误原样返回，避免级联合并时层层包装。
func WrapIO(err error, operation string) error {
	if err == nil {
		return nil
	}
	if IsErrorCode(err, ErrCodePropagatedIO) {
		return err
	}
	return WrapError(err, ErrCodePropagatedIO, operation)
}

// New 创建新错误（带调用位置）
func New(code ErrorCode, msg string) error {
	return newAt(2, code, msg)
}

// NewValidationError 创建新的验证错误
func NewValidationError(msg string) error {
	return newAt(2, ErrCodeValidation, msg)
}

// newAt skip 为 runtime.Caller 的层数，指向导出函数的调用方
func newAt(skip int, code ErrorCode, msg string) error {
	_, file, line, _ := runtime.Caller(skip)
	return NewError(code, fmt.Sprintf("%s (位置: %s:%d)", msg, file, line))
}
