package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/d60-Lab/live-commerce/pkg/logger"
)

// TaskDeliver 通知投递任务类型
const TaskDeliver = "notification:deliver"

// TaskSink 把通知作为 asynq 任务写入 Redis，由 worker 异步投递并按策略重试
type TaskSink struct {
	client   *asynq.Client
	queue    string
	maxRetry int
}

func NewTaskSink(client *asynq.Client, queue string, maxRetry int) *TaskSink {
	if queue == "" {
		queue = "default"
	}
	return &TaskSink{client: client, queue: queue, maxRetry: maxRetry}
}

var _ Sink = (*TaskSink)(nil)

// NewTask 构造投递任务，任务 ID 即通知 ID，重复入队会被拒绝
func NewTask(n Notification) (*asynq.Task, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliver, payload), nil
}

func (s *TaskSink) Notify(ctx context.Context, n Notification) {
	prepare(&n)
	task, err := NewTask(n)
	if err != nil {
		logger.Error("encode notification task", zap.Error(err))
		return
	}

	// 请求取消不影响入队
	ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	opts := []asynq.Option{asynq.Queue(s.queue), asynq.TaskID(n.ID)}
	if s.maxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.maxRetry))
	}
	info, err := s.client.EnqueueContext(ectx, task, opts...)
	if err != nil {
		logger.Error("enqueue notification failed", zap.String("user", n.UserID), zap.String("id", n.ID), zap.Error(err))
		return
	}
	logger.Debug("notification enqueued", zap.String("task", info.ID), zap.String("queue", info.Queue))
}

// HandleDeliverTask asynq 任务处理函数
func HandleDeliverTask(d *Deliverer) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var n Notification
		if err := json.Unmarshal(t.Payload(), &n); err != nil {
			// 载荷损坏重试也无意义
			return fmt.Errorf("decode notification: %v: %w", err, asynq.SkipRetry)
		}
		return d.Deliver(ctx, n)
	}
}

// RegisterTasks 在 mux 上注册通知相关的任务处理
func RegisterTasks(mux *asynq.ServeMux, d *Deliverer) {
	mux.HandleFunc(TaskDeliver, HandleDeliverTask(d))
}

// NewServer 创建消费通知队列的 asynq server
func NewServer(opt asynq.RedisConnOpt, queue string, concurrency int) *asynq.Server {
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.Warn("asynq task failed", zap.String("type", task.Type()), zap.Error(err))
		}),
		Logger: zapAsynqLogger{},
	})
}

// zapAsynqLogger 把 asynq 内部日志接到全局 zap
type zapAsynqLogger struct{}

func (zapAsynqLogger) Debug(args ...interface{}) { logger.Debug(fmt.Sprint(args...)) }
func (zapAsynqLogger) Info(args ...interface{})  { logger.Info(fmt.Sprint(args...)) }
func (zapAsynqLogger) Warn(args ...interface{})  { logger.Warn(fmt.Sprint(args...)) }
func (zapAsynqLogger) Error(args ...interface{}) { logger.Error(fmt.Sprint(args...)) }
func (zapAsynqLogger) Fatal(args ...interface{}) { logger.L().Fatal(fmt.Sprint(args...)) }
