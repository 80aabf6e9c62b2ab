package provider

import (
	"github.com/sirupsen/logrus"

	"tunefetch/pkg/logger"
)

// LogObserver 把事件写成结构化日志
type LogObserver struct {
	log *logrus.Entry
}

// NewLogObserver 创建日志观测者
func NewLogObserver() *LogObserver {
	return &LogObserver{log: logger.WithComponent("ProviderEvents")}
}

// OnEvent 实现 Observer
func (o *LogObserver) OnEvent(e Event) {
	entry := o.log.WithFields(logrus.Fields{
		"event":    string(e.Type),
		"provider": e.ProviderKey,
	})
	if e.ChainID != "" {
		entry = entry.WithField("chain_id", e.ChainID)
	}
	if e.Operation != "" {
		entry = entry.WithField("operation", e.Operation)
	}
	if e.StatusCode != 0 {
		entry = entry.WithField("status", e.StatusCode)
	}
	if e.Err != nil {
		entry = entry.WithError(e.Err)
	}

	// 运维可见的尝试日志只在这里输出，Client 与 Orchestrator 自身只写 Debug
	switch e.Type {
	case EventCircuitOpened, EventChainExhausted:
		entry.Warn("provider event")
	case EventAttemptFailed:
		entry.WithField("outcome", e.Outcome.String()).Warn("provider event")
	case EventCircuitClosed, EventRateLimited:
		entry.Info("provider event")
	default:
		entry.Debug("provider event")
	}
}
