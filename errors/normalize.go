package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// Normalize 将驱动层错误规范化为 AppError。
//
// 约定：
//   - 已经是 IError 的错误原样返回；
//   - 各驱动的“记录不存在”统一为 NOT_FOUND；
//   - 上下文超时统一为 TIMEOUT；
//   - 未识别的错误保持原样，由调用方决定是否 Wrap。
func Normalize(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(IError); ok {
		return err
	}

	switch {
	case stdErrors.Is(err, sql.ErrNoRows):
		return WrapError(err, ErrCodeNotFound, "记录不存在")
	case stdErrors.Is(err, mongo.ErrNoDocuments):
		return WrapError(err, ErrCodeNotFound, "文档不存在")
	case stdErrors.Is(err, redis.Nil):
		return WrapError(err, ErrCodeNotFound, "键不存在")
	case stdErrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, ErrCodeTimeout, "操作超时")
	}

	return err
}
