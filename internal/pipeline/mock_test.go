package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/hszk-dev/streamcast/internal/workerclient"
)

// mockWorkerClient provides a configurable fake for WorkerClient.
type mockWorkerClient struct {
	startFn func(ctx context.Context, worker string, timeout time.Duration, req workerclient.ConvertRequest) (bool, error)
	pollFn  func(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error)
	listFn  func(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error)
	fetchFn func(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error
}

func (m *mockWorkerClient) Start(ctx context.Context, worker string, timeout time.Duration, req workerclient.ConvertRequest) (bool, error) {
	if m.startFn != nil {
		return m.startFn(ctx, worker, timeout, req)
	}
	return true, nil
}

func (m *mockWorkerClient) Poll(ctx context.Context, worker string, timeout time.Duration, videoID string) (workerclient.Status, string, error) {
	if m.pollFn != nil {
		return m.pollFn(ctx, worker, timeout, videoID)
	}
	return workerclient.StatusCompleted, "", nil
}

func (m *mockWorkerClient) List(ctx context.Context, worker string, timeout time.Duration, videoID string) ([]string, error) {
	if m.listFn != nil {
		return m.listFn(ctx, worker, timeout, videoID)
	}
	return nil, nil
}

func (m *mockWorkerClient) Fetch(ctx context.Context, worker string, timeout time.Duration, videoID, filename string, dst io.Writer) error {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, worker, timeout, videoID, filename, dst)
	}
	return nil
}
