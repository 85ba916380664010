package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/tendermint/reviewattest/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to start or stop a
	// service that has been stopped. Services are not restartable.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a service that
	// is not running.
	ErrNotStarted = errors.New("not started")
)

// Service is a long running component: the RPC server, the ledger node,
// the metrics listener.
type Service interface {
	// Start starts the service. The service runs until the context is
	// canceled or Stop is called.
	Start(context.Context) error
	Stop() error

	IsRunning() bool
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation is the set of hooks BaseService calls on the concrete
// service.
type Implementation interface {
	Service

	// OnStart is called by Start. If it returns an error the service is
	// not marked as started.
	OnStart(context.Context) error
	// OnStop is called exactly once, by Stop or when the start context is
	// canceled.
	OnStop()
}

// BaseService implements the start/stop bookkeeping of a Service. Embed it
// and set it with NewBaseService:
//
//	type Server struct {
//		service.BaseService
//	}
//
//	func NewServer(logger log.Logger) *Server {
//		s := &Server{}
//		s.BaseService = *service.NewBaseService(logger, "Server", s)
//		return s
//	}
type BaseService struct {
	logger  log.Logger
	name    string
	started uint32 // atomic
	stopped uint32 // atomic
	quit    chan struct{}

	impl Implementation
}

// NewBaseService creates a new BaseService. A nil logger discards output.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		quit:   make(chan struct{}),
		impl:   impl,
	}
}

// Start calls OnStart and arranges for Stop to be called when ctx is done.
func (bs *BaseService) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&bs.started, 0, 1) {
		return ErrAlreadyStarted
	}
	if atomic.LoadUint32(&bs.stopped) == 1 {
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		atomic.StoreUint32(&bs.started, 0)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name, "impl", bs.impl.String())
	if err := bs.impl.OnStart(ctx); err != nil {
		atomic.StoreUint32(&bs.started, 0)
		return err
	}

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if !bs.impl.IsRunning() {
				return
			}
			if err := bs.Stop(); err != nil {
				bs.logger.Error("stopping service", "service", bs.name, "err", err)
				return
			}
			bs.logger.Info("stopped service", "service", bs.name)
		}
	}()

	return nil
}

// Stop calls OnStop and releases everything blocked in Wait.
func (bs *BaseService) Stop() error {
	if !atomic.CompareAndSwapUint32(&bs.stopped, 0, 1) {
		return ErrAlreadyStopped
	}
	if atomic.LoadUint32(&bs.started) == 0 {
		atomic.StoreUint32(&bs.stopped, 0)
		return ErrNotStarted
	}

	bs.logger.Info("stopping service", "service", bs.name)
	bs.impl.OnStop()
	close(bs.quit)
	return nil
}

func (bs *BaseService) IsRunning() bool {
	return atomic.LoadUint32(&bs.started) == 1 && atomic.LoadUint32(&bs.stopped) == 0
}

func (bs *BaseService) Wait() { <-bs.quit }

func (bs *BaseService) String() string { return bs.name }
