package telemetry

import (
	"context"
	"sync"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"tunefetch/pkg/apperror"
	"tunefetch/pkg/config"
	"tunefetch/pkg/logger"
	"tunefetch/pkg/provider"
)

// Measurement 每次提供商尝试写入的测量名
const Measurement = "provider_attempt"

// InfluxObserver 把每次提供商尝试写成一个 InfluxDB 点
type InfluxObserver struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	log      *logrus.Entry

	closeOnce sync.Once
	done      chan struct{}
}

// NewInfluxObserver 创建 InfluxDB 观察者，写入是异步批量的
func NewInfluxObserver(cfg config.TelemetryConfig) (*InfluxObserver, error) {
	if cfg.URL == "" {
		return nil, apperror.New(apperror.ErrInvalidConfig, "telemetry url cannot be empty")
	}
	if cfg.Org == "" || cfg.Bucket == "" {
		return nil, apperror.New(apperror.ErrInvalidConfig, "telemetry org and bucket are required").
			WithContext("url", cfg.URL)
	}

	opts := influxdb2.DefaultOptions().
		SetBatchSize(100).
		SetFlushInterval(1000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	o := &InfluxObserver{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		log:      logger.WithComponent("Telemetry").WithField("bucket", cfg.Bucket),
		done:     make(chan struct{}),
	}
	go o.handleWriteErrors()
	return o, nil
}

// Ping 检查 InfluxDB 是否可达
func (o *InfluxObserver) Ping(ctx context.Context) error {
	ok, err := o.client.Ping(ctx)
	if err != nil {
		return apperror.Wrap(apperror.ErrConnectionFailed, "influxdb ping failed", err)
	}
	if !ok {
		return apperror.New(apperror.ErrConnectionFailed, "influxdb is not ready")
	}
	return nil
}

// OnEvent 实现 provider.Observer，只记录真正的尝试结果
func (o *InfluxObserver) OnEvent(e provider.Event) {
	switch e.Type {
	case provider.EventAttemptSucceeded, provider.EventAttemptFailed,
		provider.EventRateLimited, provider.EventCircuitSkipped:
	default:
		return
	}

	point := influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("family", e.Family).
		AddTag("provider", e.Provider).
		AddTag("outcome", e.Outcome.String()).
		AddTag("operation", e.Operation).
		AddField("duration_ms", e.Duration.Milliseconds()).
		AddField("status_code", e.StatusCode).
		AddField("attempt", e.Attempt).
		SetTime(e.Time)

	o.writeAPI.WritePoint(point)
}

// Flush 立即写出缓冲中的点
func (o *InfluxObserver) Flush() {
	o.writeAPI.Flush()
}

// Close 写出剩余数据并关闭客户端
func (o *InfluxObserver) Close() {
	o.closeOnce.Do(func() {
		o.writeAPI.Flush()
		o.client.Close()
		close(o.done)
	})
}

func (o *InfluxObserver) handleWriteErrors() {
	errorsCh := o.writeAPI.Errors()
	for {
		select {
		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			o.log.WithError(err).Error("InfluxDB write error")
		case <-o.done:
			return
		}
	}
}
