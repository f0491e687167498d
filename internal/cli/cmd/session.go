package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap/zapcore"

	"jobfetch/internal/api"
	"jobfetch/internal/blobstore"
	"jobfetch/internal/dirs"
	"jobfetch/internal/lifecycle"
	"jobfetch/internal/logster"
)

// session bundles what one fetch or TUI run needs.
type session struct {
	logger logster.Logger
	client *api.Client
	blobs  *blobstore.Store
	ctrl   *lifecycle.Controller

	closeLog func() error
}

// openSession wires logger, client, blob store and controller from the
// resolved settings. toFile sends logs to the state dir instead of stderr.
func (a *app) openSession(toFile bool) (*session, error) {
	logger, closeLog, err := a.openLogger(toFile)
	if err != nil {
		return nil, err
	}
	s := a.settings

	client, err := api.New(s.Server, api.WithTimeout(s.RequestTimeout), api.WithLogger(logger))
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	base, err := dirs.BlobBaseDir()
	if err != nil {
		base = filepath.Join(os.TempDir(), dirs.AppName())
	}
	blobs, err := blobstore.Open(base)
	if err != nil {
		_ = closeLog()
		return nil, err
	}

	ctrl := lifecycle.New(client, blobs,
		lifecycle.WithPollInterval(s.PollInterval),
		lifecycle.WithRetryDelay(s.RetryDelay),
		lifecycle.WithMaxWait(s.MaxWait),
		lifecycle.WithLogger(logger),
	)
	logger.WithField("server", s.Server).Debugf("session opened")
	return &session{logger: logger, client: client, blobs: blobs, ctrl: ctrl, closeLog: closeLog}, nil
}

func (s *session) Close() {
	s.ctrl.Close()
	_ = logster.LogIfError(s.logger, s.blobs.Close(), "closing blob store")
	_ = s.logger.Sync()
	_ = s.closeLog()
}

func (a *app) openLogger(toFile bool) (logster.Logger, func() error, error) {
	cfg := logster.Config{Level: a.settings.LogLevel, Format: a.settings.LogFormat}
	if !toFile {
		return logster.New(zapcore.Lock(os.Stderr), cfg), func() error { return nil }, nil
	}

	path, err := dirs.LogFile()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve log file: %w", err)
	}
	if err := dirs.Ensure(filepath.Dir(path)); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	cfg.Format = "json"
	return logster.New(zapcore.AddSync(f), cfg), f.Close, nil
}
