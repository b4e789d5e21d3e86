package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind はバックグラウンドタスクの種別
type Kind string

const (
	KindEnrich   Kind = "enrich"
	KindIndex    Kind = "index"
	KindClassify Kind = "classify"
)

// Task はパイプライン1段分の不変な入力メッセージ
// 各段は次段の入力を投入するだけで、処理中の状態を共有しない
type Task struct {
	Kind       Kind
	ResourceID uuid.UUID
}

// HandlerFunc はタスク1件を処理する関数
type HandlerFunc func(ctx context.Context, resourceID uuid.UUID) error

// Queue はプロセス内のタスクキューとワーカープール
//
// リソースごとのパイプライン段はこのキューを介して順番に連鎖し、
// 異なるリソースのタスクはワーカー数までの並列で処理される
type Queue struct {
	tasks    chan Task
	handlers map[Kind]HandlerFunc
	workers  int
	logger   *slog.Logger

	mu      sync.Mutex
	closed  bool
	started bool
	wg      sync.WaitGroup
	sendWG  sync.WaitGroup

	// syncMode はワーカーを介さず投入時に即時実行する（テスト用）
	syncMode bool
	syncCtx  context.Context
}

type queueOptions struct {
	workers  int
	buffer   int
	logger   *slog.Logger
	syncMode bool
}

// Option は Queue のオプション設定
type Option func(*queueOptions)

// WithWorkers はワーカー数を設定する
func WithWorkers(n int) Option {
	return func(o *queueOptions) {
		o.workers = n
	}
}

// WithBuffer はキューのバッファ長を設定する
func WithBuffer(n int) Option {
	return func(o *queueOptions) {
		o.buffer = n
	}
}

// WithQueueLogger は Queue にロガーを設定する
func WithQueueLogger(logger *slog.Logger) Option {
	return func(o *queueOptions) {
		o.logger = logger
	}
}

// WithSynchronous は投入時に同じゴルーチンで即時実行するモードにする
// タイミングに依存しないテストのためのモード
func WithSynchronous() Option {
	return func(o *queueOptions) {
		o.syncMode = true
	}
}

// New は新しいQueueを作成する
func New(opts ...Option) *Queue {
	options := queueOptions{
		workers: 4,
		buffer:  256,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return &Queue{
		tasks:    make(chan Task, options.buffer),
		handlers: make(map[Kind]HandlerFunc),
		workers:  options.workers,
		logger:   options.logger,
		syncMode: options.syncMode,
		syncCtx:  context.Background(),
	}
}

// Register はタスク種別に対応するハンドラを登録する
// Startより前に呼ぶこと
func (q *Queue) Register(kind Kind, handler HandlerFunc) {
	q.handlers[kind] = handler
}

// Start はワーカープールを起動する
// 同期モードでは何もしない
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.syncMode {
		q.syncCtx = ctx
		q.started = true
		return
	}
	q.started = true

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx)
	}
	q.logger.Info("task queue started", slog.Int("workers", q.workers))
}

// worker はチャネルがクローズされるまでタスクを処理し続ける
// 停止はShutdownによるクローズで行い、ctxのキャンセルはハンドラ側の
// 処理の中断にだけ作用する
func (q *Queue) worker(ctx context.Context) {
	defer q.wg.Done()
	for task := range q.tasks {
		q.dispatch(ctx, task)
	}
}

func (q *Queue) dispatch(ctx context.Context, task Task) {
	handler, ok := q.handlers[task.Kind]
	if !ok {
		q.logger.Error("no handler registered for task kind",
			slog.String("kind", string(task.Kind)),
		)
		return
	}
	if err := handler(ctx, task.ResourceID); err != nil {
		q.logger.Warn("task failed",
			slog.String("kind", string(task.Kind)),
			slog.String("resourceID", task.ResourceID.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Enqueue はタスクを投入する
// クローズ後の投入は捨てられる（シャットダウン中の競合を許容する）
//
// ワーカー内のハンドラが次段を投入するため、ここでワーカー自身を
// 塞いではならない。バッファ満杯時は投入を別ゴルーチンに逃がし、
// ワーカーは次のタスクの受信に戻れるようにする
func (q *Queue) Enqueue(task Task) {
	if q.syncMode {
		q.dispatch(q.syncCtx, task)
		return
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.logger.Warn("task dropped, queue is closed",
			slog.String("kind", string(task.Kind)),
		)
		return
	}
	q.sendWG.Add(1)
	q.mu.Unlock()

	select {
	case q.tasks <- task:
		q.sendWG.Done()
	default:
		go func() {
			defer q.sendWG.Done()
			q.tasks <- task
		}()
	}
}

// EnqueueEnrich はメタデータ補完タスクを投入する
func (q *Queue) EnqueueEnrich(resourceID uuid.UUID) {
	q.Enqueue(Task{Kind: KindEnrich, ResourceID: resourceID})
}

// EnqueueIndex はインデックス化タスクを投入する
func (q *Queue) EnqueueIndex(resourceID uuid.UUID) {
	q.Enqueue(Task{Kind: KindIndex, ResourceID: resourceID})
}

// EnqueueClassify はAI分類タスクを投入する
func (q *Queue) EnqueueClassify(resourceID uuid.UUID) {
	q.Enqueue(Task{Kind: KindClassify, ResourceID: resourceID})
}

// Shutdown は新規投入を止め、キュー内の残タスクを処理し切ってから戻る
func (q *Queue) Shutdown() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	// closed後のEnqueueは捨てられるので、待機中の投入が
	// すべて着地してからチャネルを閉じれば送信とクローズは競合しない
	q.sendWG.Wait()
	close(q.tasks)

	q.wg.Wait()
	q.logger.Info("task queue drained")
}
