package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/spachava753/msgsession/blobstore"
	"github.com/spachava753/msgsession/config"
	"github.com/spachava753/msgsession/credentials"
	"github.com/spachava753/msgsession/dispatch"
	"github.com/spachava753/msgsession/logging"
	"github.com/spachava753/msgsession/runner"
	"github.com/spachava753/msgsession/session"
	"github.com/spachava753/msgsession/transport"
	"github.com/spachava753/msgsession/transport/imessage"
	"github.com/spachava753/msgsession/transport/smtpgw"
)

// app is the dependency graph of one invocation.
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	blobs    *blobstore.Store
	registry *session.Registry
	runner   *runner.Runner
}

func newApp(cfg config.Config, out io.Writer) (*app, error) {
	logger := logging.New(cfg.Log, os.Stderr)

	if err := os.MkdirAll(cfg.Store.Home, 0o700); err != nil {
		return nil, fmt.Errorf("msgsession: creating %s failed: %w", cfg.Store.Home, err)
	}
	creds := credentials.New(cfg.Store.CredentialsDir)

	factory, err := transportFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry, err := session.NewRegistry(session.Options{
		Credentials: creds,
		Factory:     ensuringFactory(creds, factory),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	blobs, err := blobstore.Open(cfg.Store.BlobPath)
	if err != nil {
		return nil, err
	}

	dispatcher, err := dispatch.New(dispatch.Options{
		Sessions: registry,
		Suffix:   cfg.Transport.Suffix,
		Logger:   logger,
	})
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	r, err := runner.New(runner.Options{
		Registry:   registry,
		Waiter:     session.NewWaiter(registry, millis(cfg.Session.CheckIntervalMillis)),
		Dispatcher: dispatcher,
		Publisher:  blobs,
		MasterKey:  cfg.Auth.MasterKey,
		Defaults: runner.Defaults{
			SessionID:            cfg.Session.DefaultID,
			WaitTimeout:          millis(cfg.Session.WaitTimeoutMillis),
			DelayBetweenMessages: millis(cfg.Session.DelayBetweenMessagesMillis),
		},
		Output: out,
		Logger: logger,
	})
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, blobs: blobs, registry: registry, runner: r}, nil
}

// close shuts down every session and the blob store.
func (a *app) close() error {
	return errors.Join(a.registry.Shutdown(), a.blobs.Close())
}

func transportFactory(cfg config.Config, logger zerolog.Logger) (transport.Factory, error) {
	switch cfg.Transport.Kind {
	case config.TransportSMTP:
		return smtpgw.NewFactory(cfg.SMTP, logger), nil
	case config.TransportIMessage:
		return imessage.NewFactory(cfg.IMessage), nil
	default:
		return nil, fmt.Errorf("msgsession: unknown transport kind %q", cfg.Transport.Kind)
	}
}

// ensuringFactory creates the session's credential directory before the
// transport is built.
func ensuringFactory(creds *credentials.Store, next transport.Factory) transport.Factory {
	return func(sessionID string, credentialDir string) (transport.Transport, error) {
		if _, err := creds.Ensure(sessionID); err != nil {
			return nil, err
		}
		return next(sessionID, credentialDir)
	}
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
