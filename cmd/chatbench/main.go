// chatbench 对比直播聊天消息单表与分表存储的写入、历史读取性能
package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/d60-Lab/live-commerce/config"
	"github.com/d60-Lab/live-commerce/internal/model"
	"github.com/d60-Lab/live-commerce/internal/repository"
	"github.com/d60-Lab/live-commerce/pkg/database"
)

var (
	roomCount    = flag.Int("rooms", 200, "直播间数量")
	messageCount = flag.Int("messages", 50000, "写入消息总数")
	concurrency  = flag.Int("c", 50, "并发数")
	readSeconds  = flag.Int("read", 15, "历史读取压测时长（秒）")
	shardTables  = flag.Int("shards", 8, "分表数量")
	historySize  = flag.Int("history", 50, "每次读取的历史条数")
)

type BenchResult struct {
	Name           string
	Duration       time.Duration
	TotalRequests  int64
	FailedRequests int64
	QPS            float64
	AvgLatency     time.Duration
	P50Latency     time.Duration
	P95Latency     time.Duration
	P99Latency     time.Duration
}

// chatStore 两种布局共有的操作
type chatStore interface {
	repository.ChatRepository
	InitSchema() error
}

func main() {
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.Load()
	must(err)
	db, err := database.InitDB(cfg)
	must(err)
	defer database.Close(db)

	node, err := snowflake.NewNode(cfg.Chat.NodeID)
	must(err)

	fmt.Println("===== 直播聊天存储压测 =====")
	fmt.Printf("数据库: %s | 直播间: %d | 消息: %d | 并发: %d | 分表: %d\n\n",
		cfg.Database.Driver, *roomCount, *messageCount, *concurrency, *shardTables)

	single := repository.NewChatRepository(db)
	sharded, err := repository.NewShardedChatRepository(db, *shardTables)
	must(err)

	singleInsert, singleRead := runScenario(ctx, "单表", db, single, node, singleTables())
	shardInsert, shardRead := runScenario(ctx, "分表", db, sharded, node, shardTableNames(*shardTables))

	fmt.Println("\n===== 对比总结 =====")
	printComparison("写入消息", singleInsert, shardInsert)
	printComparison("读取历史", singleRead, shardRead)
}

func singleTables() []string { return []string{model.ChatMessage{}.TableName()} }

func shardTableNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("live_chat_messages_%d", i)
	}
	return names
}

func runScenario(ctx context.Context, name string, db *gorm.DB, store chatStore, node *snowflake.Node, tables []string) (*BenchResult, *BenchResult) {
	fmt.Printf(">>> 准备%s环境...\n", name)
	for _, t := range tables {
		db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t))
	}
	must(store.InitSchema())

	fmt.Printf("===== %s - 写入 =====\n", name)
	insert := benchInsert(ctx, store, node, name)
	printBenchResult(insert)

	fmt.Printf("\n===== %s - 历史读取 =====\n", name)
	read := benchHistory(ctx, store, name)
	printBenchResult(read)
	fmt.Println()
	return insert, read
}

func roomID(i int) string { return fmt.Sprintf("live-%04d", i) }

func benchInsert(ctx context.Context, store chatStore, node *snowflake.Node, name string) *BenchResult {
	var (
		total, failed int64
		recorder      latencyRecorder
		wg            sync.WaitGroup
	)
	start := time.Now()
	base := start.Add(-time.Hour)

	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; i < *messageCount; i += *concurrency {
				msg := &model.ChatMessage{
					ID:           node.Generate().String(),
					LiveStreamID: roomID(rand.Intn(*roomCount)),
					UserID:       fmt.Sprintf("user-%d", rand.Intn(100000)),
					UserName:     "viewer",
					UserRole:     "USER",
					Message:      fmt.Sprintf("message %d", i),
					CreatedAt:    base.Add(time.Duration(i) * time.Millisecond),
				}
				reqStart := time.Now()
				err := store.Save(ctx, msg)
				recorder.add(time.Since(reqStart))

				atomic.AddInt64(&total, 1)
				if err != nil {
					if n := atomic.AddInt64(&failed, 1); n <= 5 {
						fmt.Printf("写入失败 [%d]: %v\n", n, err)
					}
				}
			}
		}(w)
	}
	wg.Wait()
	return recorder.result(name, time.Since(start), total, failed)
}

func benchHistory(ctx context.Context, store chatStore, name string) *BenchResult {
	var (
		total, failed int64
		recorder      latencyRecorder
		wg            sync.WaitGroup
	)
	start := time.Now()
	stop := start.Add(time.Duration(*readSeconds) * time.Second)

	for w := 0; w < *concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(stop) {
				reqStart := time.Now()
				_, err := store.ListRecent(ctx, roomID(rand.Intn(*roomCount)), *historySize)
				recorder.add(time.Since(reqStart))

				atomic.AddInt64(&total, 1)
				if err != nil {
					atomic.AddInt64(&failed, 1)
				}
			}
		}()
	}
	wg.Wait()
	return recorder.result(name, time.Since(start), total, failed)
}

type latencyRecorder struct {
	mu        sync.Mutex
	latencies []time.Duration
}

func (r *latencyRecorder) add(d time.Duration) {
	r.mu.Lock()
	r.latencies = append(r.latencies, d)
	r.mu.Unlock()
}

func (r *latencyRecorder) result(name string, duration time.Duration, total, failed int64) *BenchResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	sorted := append([]time.Duration(nil), r.latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, l := range sorted {
		sum += l
	}
	res := &BenchResult{
		Name:           name,
		Duration:       duration,
		TotalRequests:  total,
		FailedRequests: failed,
		QPS:            float64(total) / duration.Seconds(),
		P50Latency:     percentile(sorted, 0.50),
		P95Latency:     percentile(sorted, 0.95),
		P99Latency:     percentile(sorted, 0.99),
	}
	if len(sorted) > 0 {
		res.AvgLatency = sum / time.Duration(len(sorted))
	}
	return res
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func printBenchResult(r *BenchResult) {
	fmt.Printf("名称: %s\n", r.Name)
	fmt.Printf("耗时: %v\n", r.Duration.Round(time.Millisecond))
	fmt.Printf("总请求数: %d (失败 %d)\n", r.TotalRequests, r.FailedRequests)
	fmt.Printf("QPS: %.2f\n", r.QPS)
	fmt.Printf("平均/P50/P95/P99: %v / %v / %v / %v\n", r.AvgLatency, r.P50Latency, r.P95Latency, r.P99Latency)
}

func printComparison(operation string, single, sharded *BenchResult) {
	fmt.Printf("\n--- %s ---\n", operation)
	fmt.Printf("单表 QPS: %.2f | P95: %v\n", single.QPS, single.P95Latency)
	fmt.Printf("分表 QPS: %.2f | P95: %v\n", sharded.QPS, sharded.P95Latency)
	if single.QPS > 0 {
		fmt.Printf("QPS 变化: %.2f%%\n", (sharded.QPS-single.QPS)/single.QPS*100)
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
