package storage

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Backend names reported by Select.
const (
	BackendRemote = "remote"
	BackendLocal  = "local"
)

// SelectOptions drive the one-time backend choice made at startup.
type SelectOptions struct {
	RemoteURL    string
	Token        string
	Timeout      time.Duration
	ProbeTimeout time.Duration
	LocalDSN     string
}

// Select probes the networked store once and falls back to the local SQLite
// store when it is unset or unreachable. The result is injected into the
// services; nothing downstream needs to know which backend won.
func Select(ctx context.Context, opts SelectOptions, log *zap.Logger) (Gateway, string, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if opts.RemoteURL != "" {
		remote := NewRemoteStore(opts.RemoteURL, opts.Token, opts.Timeout, log)

		probeTimeout := opts.ProbeTimeout
		if probeTimeout <= 0 {
			probeTimeout = 3 * time.Second
		}
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := remote.Ping(probeCtx)
		cancel()

		if err == nil {
			log.Info("store backend connection established", zap.String("backend", BackendRemote), zap.String("url", opts.RemoteURL))
			return remote, BackendRemote, nil
		}
		log.Warn("store backend not available, using local fallback", zap.String("url", opts.RemoteURL), zap.Error(err))
	}

	local, err := NewSQLiteStore(opts.LocalDSN, log)
	if err != nil {
		return nil, "", err
	}
	log.Info("store backend selected", zap.String("backend", BackendLocal), zap.String("dsn", opts.LocalDSN))
	return local, BackendLocal, nil
}
