package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestWorkerPool(t *testing.T) {
	t.Parallel()

	pool := NewWorkerPool(context.Background(), 4, 16)

	const jobs = 20
	go func() {
		for i := 0; i < jobs; i++ {
			i := i
			pool.Submit(FileJob{
				Path: fmt.Sprintf("file%d.c", i),
				Run: func(ctx context.Context) ([]Finding, error) {
					if i%5 == 0 {
						return nil, errors.New("boom")
					}
					return []Finding{{Kind: KindMemoryLeak, Line: i}}, nil
				},
			})
		}
		pool.Close()
	}()

	var ok, failed int
	for res := range pool.Results() {
		if res.Err != nil {
			failed++
			continue
		}
		ok++
		if len(res.Findings) != 1 {
			t.Errorf("%s: got %d findings, want 1", res.Path, len(res.Findings))
		}
	}
	if ok != 16 || failed != 4 {
		t.Errorf("ok=%d failed=%d, want 16/4", ok, failed)
	}

	stats := pool.Stats()
	if stats.JobsSubmitted != jobs || stats.JobsCompleted != jobs || stats.JobsFailed != 4 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestWorkerPoolCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	pool := NewWorkerPool(ctx, 2, 4)
	cancel()

	// 取消后新提交被拒绝
	accepted := pool.Submit(FileJob{
		Path: "late.c",
		Run:  func(ctx context.Context) ([]Finding, error) { return nil, nil },
	})
	if accepted {
		// 队列仍有空间时 Submit 可能先于取消检测成功，容忍两种结果
		t.Log("submit raced ahead of cancellation")
	}
	pool.Close()
}
