// pkg/messaging/nats.go
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// DefaultStream 默认Stream名称
const DefaultStream = "CANCELRADAR"

// Publisher 事件发布接口
type Publisher interface {
	Publish(ctx context.Context, subject string, data interface{}) error
}

// NATSClient NATS JetStream客户端
type NATSClient struct {
	conn      *nats.Conn
	jetStream jetstream.JetStream
	stream    string
	log       *zap.Logger
}

// NewNATSClient 创建新的NATS客户端
func NewNATSClient(ctx context.Context, natsURL, stream string, log *zap.Logger) (*NATSClient, error) {
	log = log.Named("nats")
	if stream == "" {
		stream = DefaultStream
	}

	// 连接NATS
	nc, err := nats.Connect(natsURL,
		nats.Name("cancelradar"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1), // 无限重连
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS连接断开", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS重新连接成功")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("连接NATS失败: %w", err)
	}

	// 创建JetStream上下文
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("创建JetStream失败: %w", err)
	}

	client := &NATSClient{
		conn:      nc,
		jetStream: js,
		stream:    stream,
		log:       log,
	}

	if err := client.setupStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return client, nil
}

// setupStream 创建或更新提醒事件流
func (c *NATSClient) setupStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        c.stream,
		Subjects:    []string{"alerts.*", "reminders.*"},
		Description: "取消风险提醒事件流",
		Retention:   jetstream.LimitsPolicy,
		MaxMsgs:     100000,
		MaxBytes:    100 * 1024 * 1024,   // 100MB
		MaxAge:      30 * 24 * time.Hour, // 保留30天
	}

	if _, err := c.jetStream.CreateOrUpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("创建/更新Stream %s 失败: %w", cfg.Name, err)
	}
	c.log.Info("Stream 设置成功", zap.String("stream", cfg.Name))
	return nil
}

// Publish 发布消息到指定主题
func (c *NATSClient) Publish(ctx context.Context, subject string, data interface{}) error {
	payload, err := encode(data)
	if err != nil {
		return err
	}

	if _, err := c.jetStream.Publish(ctx, subject, payload); err != nil {
		return fmt.Errorf("发布消息到 %s 失败: %w", subject, err)
	}

	c.log.Debug("发布消息", zap.String("subject", subject), zap.Int("bytes", len(payload)))
	return nil
}

func encode(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		payload, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("序列化数据失败: %w", err)
		}
		return payload, nil
	}
}

// Close 关闭连接
func (c *NATSClient) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return fmt.Errorf("关闭NATS连接失败: %w", err)
	}
	c.log.Info("NATS连接已关闭")
	return nil
}

// IsConnected 检查连接状态
func (c *NATSClient) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// NopPublisher 未配置NATS时使用，丢弃所有事件
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, interface{}) error { return nil }
