package core

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// FileJob 单个文件的分析任务
type FileJob struct {
	Path string
	Run  func(ctx context.Context) ([]Finding, error)
}

// FileResult 文件分析结果
type FileResult struct {
	Path     string
	Findings []Finding
	Err      error
	Elapsed  time.Duration
}

// PoolStats 工作池统计
type PoolStats struct {
	JobsSubmitted   int64 `json:"jobs_submitted"`
	JobsCompleted   int64 `json:"jobs_completed"`
	JobsFailed      int64 `json:"jobs_failed"`
	TotalExecTimeNs int64 `json:"total_exec_time_ns"`
}

// WorkerPool 文件级并发分析池
// 每个文件是一个任务，结果经 channel 回收；
// 上游取消 context 后在途任务完成、排队任务丢弃
type WorkerPool struct {
	jobCh     chan FileJob
	resultsCh chan FileResult
	workers   int
	ctx       context.Context
	wg        sync.WaitGroup
	stats     PoolStats
}

// NewWorkerPool 创建并启动工作池；workers <= 0 时取 CPU 核数
func NewWorkerPool(ctx context.Context, workers int, queueSize int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize < workers {
		queueSize = workers
	}

	wp := &WorkerPool{
		jobCh:     make(chan FileJob, queueSize),
		resultsCh: make(chan FileResult, queueSize),
		workers:   workers,
		ctx:       ctx,
	}
	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for job := range wp.jobCh {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		start := time.Now()
		findings, err := job.Run(wp.ctx)
		elapsed := time.Since(start)

		atomic.AddInt64(&wp.stats.JobsCompleted, 1)
		atomic.AddInt64(&wp.stats.TotalExecTimeNs, int64(elapsed))
		if err != nil {
			atomic.AddInt64(&wp.stats.JobsFailed, 1)
		}

		select {
		case wp.resultsCh <- FileResult{Path: job.Path, Findings: findings, Err: err, Elapsed: elapsed}:
		case <-wp.ctx.Done():
			return
		}
	}
}

// Submit 提交任务；context 已取消时返回 false
func (wp *WorkerPool) Submit(job FileJob) bool {
	select {
	case wp.jobCh <- job:
		atomic.AddInt64(&wp.stats.JobsSubmitted, 1)
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Results 结果通道，Close 后被关闭
func (wp *WorkerPool) Results() <-chan FileResult {
	return wp.resultsCh
}

// Close 停止接收新任务，等全部在途任务结束后关闭结果通道
func (wp *WorkerPool) Close() {
	close(wp.jobCh)
	go func() {
		wp.wg.Wait()
		close(wp.resultsCh)
	}()
}

// Stats 当前统计快照
func (wp *WorkerPool) Stats() PoolStats {
	return PoolStats{
		JobsSubmitted:   atomic.LoadInt64(&wp.stats.JobsSubmitted),
		JobsCompleted:   atomic.LoadInt64(&wp.stats.JobsCompleted),
		JobsFailed:      atomic.LoadInt64(&wp.stats.JobsFailed),
		TotalExecTimeNs: atomic.LoadInt64(&wp.stats.TotalExecTimeNs),
	}
}
