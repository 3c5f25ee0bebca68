package uplink

import (
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightpath-dev/sentinel-core/internal/config"
	"github.com/flightpath-dev/sentinel-core/internal/pipeline"
)

func TestRunDeliversQueuedItemsUntilClosed(t *testing.T) {
	var received int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&received, 1)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cfg := config.UplinkConfig{Endpoint: srv.URL, RequestTimeout: time.Second}
	client := New(cfg, log.Default())

	queue := pipeline.NewQueue[pipeline.UploadItem](4, pipeline.DropNewest)
	queue.Push(pipeline.UploadItem{FrameID: 1, Kind: "frame"})
	queue.Push(pipeline.UploadItem{FrameID: 2, Kind: "alert"})
	queue.Close()

	client.Run(context.Background(), queue)

	assert.Equal(t, int32(2), atomic.LoadInt32(&received))
	assert.Equal(t, uint64(0), client.Failures())
}

func TestRunRecordsFailureOnNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := config.UplinkConfig{Endpoint: srv.URL, RequestTimeout: time.Second}
	client := New(cfg, log.Default())

	var callbacks int32
	client.OnFailure(func() { atomic.AddInt32(&callbacks, 1) })

	queue := pipeline.NewQueue[pipeline.UploadItem](4, pipeline.DropNewest)
	queue.Push(pipeline.UploadItem{FrameID: 1, Kind: "frame"})
	queue.Close()

	client.Run(context.Background(), queue)

	require.Equal(t, uint64(1), client.Failures())
	assert.Equal(t, int32(1), atomic.LoadInt32(&callbacks))
}
