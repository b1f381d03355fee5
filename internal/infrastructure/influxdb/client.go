package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/loxhome-core/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Recorder writes LoxHome history to an InfluxDB v2 bucket: numeric entity
// states and backend connectivity changes.
//
// Points are queued on the library's non-blocking write API and sent in
// batches. Batch failures never reach the caller of a Record method; they
// are counted and passed to the SetOnError callback.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	bucket   string

	// mu guards closed; writes hold it shared so Close never races one.
	mu     sync.RWMutex
	closed bool

	queued atomic.Uint64
	failed atomic.Uint64

	onError atomic.Pointer[func(error)]
}

// Stats counts points since Connect.
type Stats struct {
	Bucket string `json:"bucket"`
	Queued uint64 `json:"queued"`
	Failed uint64 `json:"failed_batches"`
}

// Connect pings the server and prepares the batched write API.
//
// Parameters:
//   - ctx: Bounds the initial ping together with connectTimeout
//   - cfg: InfluxDB section of the configuration
//
// Returns:
//   - *Recorder: Ready recorder
//   - error: ErrDisabled, or ErrConnectionFailed wrapping the cause
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := ping(pingCtx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	r := &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
	}
	go r.drainErrors(r.writeAPI.Errors())
	return r, nil
}

func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize) // #nosec G115 -- positive
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive
}

func ping(ctx context.Context, client influxdb2.Client) error {
	healthy, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	if !healthy {
		return errors.New("ping: server not ready")
	}
	return nil
}

// drainErrors counts failed batches until the write API closes its channel.
func (r *Recorder) drainErrors(errs <-chan error) {
	for err := range errs {
		r.failed.Add(1)
		if fn := r.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError sets the callback for failed batch writes.
func (r *Recorder) SetOnError(fn func(error)) {
	r.onError.Store(&fn)
}

// Close flushes queued points and releases the client. Safe to call more
// than once and on a nil recorder.
func (r *Recorder) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.writeAPI.Flush()
	r.client.Close()
	return nil
}

// Flush sends queued points now. Does nothing after Close.
func (r *Recorder) Flush() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.writeAPI.Flush()
}

// HealthCheck pings the server.
func (r *Recorder) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return ErrNotConnected
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(checkCtx, r.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Stats reports the points queued and the batches that failed.
func (r *Recorder) Stats() Stats {
	return Stats{Bucket: r.bucket, Queued: r.queued.Load(), Failed: r.failed.Load()}
}

func (r *Recorder) enqueue(p *write.Point) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.queued.Add(1)
	r.writeAPI.WritePoint(p)
}
