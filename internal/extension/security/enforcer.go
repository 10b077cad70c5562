package security

import (
	"context"

	"github.com/charmbracelet/log"

	"github.com/dshills/exthost/internal/disposable"
	"github.com/dshills/exthost/internal/logging"
)

// Enforcer applies a policy to a running extension at the OS level. The
// returned Disposable lifts the enforcement.
type Enforcer interface {
	Apply(ctx context.Context, extensionID string, p Policy) (disposable.Disposable, error)
}

// NoopEnforcer records policy attachment in the log and enforces nothing.
type NoopEnforcer struct {
	Logger *log.Logger
}

// Apply logs the attached policy.
func (e NoopEnforcer) Apply(_ context.Context, extensionID string, p Policy) (disposable.Disposable, error) {
	logger := e.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger.Debug("policy attached",
		"extension", extensionID,
		"memory_ceiling", p.MemoryCeilingBytes(),
		"cpu_share", p.CPUSharePercent(),
	)
	return disposable.FuncNoErr(func() {
		logger.Debug("policy detached", "extension", extensionID)
	}), nil
}
