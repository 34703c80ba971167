// Package natsnotify 把实体生命周期事件发布到 NATS，主题为 <prefix>.<table>.<event>。
package natsnotify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"colorm/config"
	"colorm/data/orm"
	"colorm/data/orm/lifecycle"
	appErrors "colorm/errors"
	"colorm/logging"
)

// publisher *nats.Conn 中用到的方法
type publisher interface {
	Publish(subject string, data []byte) error
}

var _ lifecycle.Interceptor = (*Notifier)(nil)

// Change 发布的消息体
type Change struct {
	Event       string    `json:"event"`
	Entity      string    `json:"entity"`
	Table       string    `json:"table"`
	Key         any       `json:"key"`
	OperationID string    `json:"operation_id"`
	At          time.Time `json:"at"`
}

// Notifier 生命周期钩子：把写入类事件发布为变更通知
type Notifier struct {
	pub    publisher
	conn   *nats.Conn
	prefix string
	events map[lifecycle.Event]bool
	strict bool
	now    func() time.Time
	logger logging.Logger
}

// Option Notifier 选项
type Option func(*Notifier)

// WithSubjectPrefix 主题前缀
func WithSubjectPrefix(prefix string) Option {
	return func(n *Notifier) { n.prefix = prefix }
}

// WithEvents 需要发布的事件，默认 post_persist / post_update / post_remove
func WithEvents(events ...lifecycle.Event) Option {
	return func(n *Notifier) {
		n.events = make(map[lifecycle.Event]bool, len(events))
		for _, e := range events {
			n.events[e] = true
		}
	}
}

// WithStrict 发布失败时中止当前操作；默认只记录告警
func WithStrict(strict bool) Option {
	return func(n *Notifier) { n.strict = strict }
}

// WithLogger 日志器
func WithLogger(l logging.Logger) Option {
	return func(n *Notifier) {
		if l != nil {
			n.logger = l
		}
	}
}

func withClock(now func() time.Time) Option {
	return func(n *Notifier) { n.now = now }
}

// New 使用已有连接
func New(conn *nats.Conn, opts ...Option) *Notifier {
	n := newNotifier(conn, opts...)
	n.conn = conn
	return n
}

func newNotifier(pub publisher, opts ...Option) *Notifier {
	n := &Notifier{
		pub:    pub,
		prefix: config.Default().NATS.SubjectPrefix,
		events: map[lifecycle.Event]bool{
			lifecycle.PostPersist: true,
			lifecycle.PostUpdate:  true,
			lifecycle.PostRemove:  true,
		},
		now:    time.Now,
		logger: logging.Component("orm.natsnotify"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect 按配置连接 NATS
func Connect(cfg config.NATSConfig, opts ...Option) (*Notifier, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url, nats.Name("colorm"))
	if err != nil {
		return nil, appErrors.WrapError(err, appErrors.ErrCodeQueue, "natsnotify: connect "+url)
	}
	if cfg.SubjectPrefix != "" {
		opts = append([]Option{WithSubjectPrefix(cfg.SubjectPrefix)}, opts...)
	}
	return New(conn, opts...), nil
}

// Close 排空并关闭连接
func (n *Notifier) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

// Subject 实体事件对应的主题
func (n *Notifier) Subject(meta *orm.EntityMeta, event lifecycle.Event) string {
	return n.prefix + "." + meta.Table + "." + event.String()
}

// OnEvent 发布选中的事件
func (n *Notifier) OnEvent(ctx *orm.Context, event lifecycle.Event) error {
	if !n.events[event] {
		return nil
	}
	meta := ctx.Meta()
	if meta == nil {
		return nil
	}
	key, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	data, err := json.Marshal(Change{
		Event:       event.String(),
		Entity:      meta.Name,
		Table:       meta.Table,
		Key:         key,
		OperationID: ctx.OperationID(),
		At:          n.now().UTC(),
	})
	if err != nil {
		return orm.Validationf("natsnotify: encode change: %v", err)
	}
	subject := n.Subject(meta, event)
	if err := n.pub.Publish(subject, data); err != nil {
		return n.failed(ctx, subject, err)
	}
	n.logger.Debug(ctx, "change published", append(ctx.Fields(), logging.String("subject", subject))...)
	return nil
}

func (n *Notifier) failed(ctx context.Context, subject string, err error) error {
	if n.strict {
		return appErrors.WrapError(err, appErrors.ErrCodeQueue, "natsnotify: publish "+subject)
	}
	n.logger.Warn(ctx, "publish change failed", logging.String("subject", subject), logging.Error(err))
	return nil
}
