package natsnotify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/config"
	"colorm/data/orm"
	"colorm/data/orm/lifecycle"
	"colorm/data/orm/ormtest"
	"colorm/data/orm/schema"
	"colorm/logging"
)

type published struct {
	subject string
	data    []byte
}

type memPublisher struct {
	msgs []published
	fail error
}

func (p *memPublisher) Publish(subject string, data []byte) error {
	if p.fail != nil {
		return p.fail
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

var at = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func newTestNotifier(opts ...Option) (*Notifier, *memPublisher) {
	pub := &memPublisher{}
	opts = append([]Option{WithSubjectPrefix("app"), WithLogger(logging.NewNoopLogger()), withClock(func() time.Time { return at })}, opts...)
	return newNotifier(pub, opts...), pub
}

func userContext(t *testing.T, opts ...orm.ContextOption) *orm.Context {
	t.Helper()
	meta, err := schema.NewRegistry().MetaFor(&ormtest.User{})
	require.NoError(t, err)
	return orm.NewContext(context.Background(), meta, &ormtest.User{ID: 7}, opts...)
}

// TestNotifier_OnEvent 写入类事件按主题发布，消息体携带主键与操作 id
func TestNotifier_OnEvent(t *testing.T) {
	n, pub := newTestNotifier()
	ctx := userContext(t, orm.WithOperationID("op-1"))

	require.NoError(t, n.OnEvent(ctx, lifecycle.PostLoad))
	require.NoError(t, n.OnEvent(ctx, lifecycle.PrePersist))
	require.NoError(t, n.OnEvent(ctx, lifecycle.PostPersist))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "app.users.post_persist", pub.msgs[0].subject)

	var got map[string]any
	require.NoError(t, json.Unmarshal(pub.msgs[0].data, &got))
	assert.Equal(t, map[string]any{
		"event":        "post_persist",
		"entity":       "User",
		"table":        "users",
		"key":          float64(7),
		"operation_id": "op-1",
		"at":           "2024-05-01T08:00:00Z",
	}, got)
}

// TestNotifier_Events 可以指定需要发布的事件
func TestNotifier_Events(t *testing.T) {
	n, pub := newTestNotifier(WithEvents(lifecycle.PostLoad))
	ctx := userContext(t)

	require.NoError(t, n.OnEvent(ctx, lifecycle.PostPersist))
	require.NoError(t, n.OnEvent(ctx, lifecycle.PostLoad))
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, "app.users.post_load", pub.msgs[0].subject)
}

// TestNotifier_PublishFailure 默认只记录告警，严格模式下中止操作
func TestNotifier_PublishFailure(t *testing.T) {
	ctx := userContext(t)

	n, pub := newTestNotifier()
	pub.fail = errors.New("nats: connection closed")
	assert.NoError(t, n.OnEvent(ctx, lifecycle.PostRemove))

	strict, spub := newTestNotifier(WithStrict(true))
	spub.fail = errors.New("nats: connection closed")
	assert.Error(t, strict.OnEvent(ctx, lifecycle.PostRemove))
}

// TestNotifier_Manager 作为 Manager 钩子时，新建、更新与删除各发布一次
func TestNotifier_Manager(t *testing.T) {
	n, pub := newTestNotifier()
	store := ormtest.NewStore()
	m := lifecycle.NewManager(schema.NewRegistry(), store,
		lifecycle.WithHandleBuilder(ormtest.NewHandles()),
		lifecycle.WithInterceptors(n),
		lifecycle.WithLogger(logging.NewNoopLogger()))
	ctx := context.Background()

	h, err := m.Persist(ctx, &ormtest.Address{ID: "home", City: "x"})
	require.NoError(t, err)
	require.NoError(t, h.Set("City", "y"))
	_, err = m.Merge(ctx, h)
	require.NoError(t, err)
	require.NoError(t, m.Remove(ctx, h))

	var subjects []string
	for _, msg := range pub.msgs {
		subjects = append(subjects, msg.subject)
	}
	assert.Equal(t, []string{
		"app.address.post_persist",
		"app.address.post_update",
		"app.address.post_remove",
	}, subjects)
}

// TestConnect_Unreachable 连接失败返回错误
func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.NATSConfig{URL: "nats://127.0.0.1:1"})
	assert.Error(t, err)
}
