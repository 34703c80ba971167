package errors

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

// TestAppError_IsByCode 测试错误码相同即匹配
func TestAppError_IsByCode(t *testing.T) {
	sentinel := NewError(ErrCodeNotManaged, "实体未被托管")
	err := NewError(ErrCodeNotManaged, "另一条消息").WithContext("type", "User")

	assert.True(t, stdErrors.Is(err, sentinel))
	assert.False(t, stdErrors.Is(err, NewError(ErrCodeValidation, "x")))
}

// TestAppError_ErrorString 测试错误消息包含详情与原因
func TestAppError_ErrorString(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := WrapError(cause, ErrCodePropagatedIO, "写入失败").WithContext("property", "name")

	msg := err.Error()
	assert.Contains(t, msg, "[PROPAGATED_IO]")
	assert.Contains(t, msg, "property=name")
	assert.Contains(t, msg, "disk full")
	assert.True(t, stdErrors.Is(err, cause))
}

// TestWrapIO_NoDoubleWrap 测试 PROPAGATED_IO 不重复包装
func TestWrapIO_NoDoubleWrap(t *testing.T) {
	assert.Nil(t, WrapIO(nil, "noop"))

	first := WrapIO(stdErrors.New("boom"), "load")
	second := WrapIO(first, "cascade")
	assert.Same(t, first, second)
	assert.True(t, IsErrorCode(second, ErrCodePropagatedIO))
}

// TestNormalize_DriverNotFound 测试驱动层未找到错误规范化
func TestNormalize_DriverNotFound(t *testing.T) {
	for _, err := range []error{sql.ErrNoRows, mongo.ErrNoDocuments, redis.Nil} {
		assert.True(t, IsNotFound(Normalize(err)), "%v", err)
	}

	plain := stdErrors.New("other")
	assert.Same(t, plain, Normalize(plain))
	assert.Equal(t, ErrCodeTimeout, GetErrorCode(Normalize(context.DeadlineExceeded)))
}

// TestWrapDatabaseError 测试数据库错误包装
func TestWrapDatabaseError(t *testing.T) {
	ctx := context.Background()

	require.Nil(t, WrapDatabaseError(ctx, nil, "select"))
	assert.True(t, IsNotFound(WrapDatabaseError(ctx, sql.ErrNoRows, "select")))
	assert.Equal(t, ErrCodeDatabase, GetErrorCode(WrapDatabaseError(ctx, stdErrors.New("locked"), "update")))
}

// TestNew_CarriesLocation 测试 New 附带调用位置
func TestNew_CarriesLocation(t *testing.T) {
	err := NewValidationError("实体不能为空")
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "errors_test.go")
}

// TestNew_CallerLocation New 记录的是调用方而不是包内辅助函数
func TestNew_CallerLocation(t *testing.T) {
	err := New(ErrCodeNotFound, "记录不存在")
	assert.Contains(t, err.Error(), "errors_test.go")
	assert.NotContains(t, err.Error(), "wrapper.go")

	err = NewValidationError("实体不能为空")
	assert.NotContains(t, err.Error(), "wrapper.go")
}
