package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrSignerStopped = errors.New("signer stopped")

type submitResult struct {
	tx  *TxHandle
	err error
}

type submitJob struct {
	ctx             context.Context
	registryAddress string
	member          string
	validUntil      time.Time
	result          chan submitResult
}

// Signer owns the registry's write path. Submissions from any goroutine are
// queued and executed one at a time.
type Signer struct {
	registry Registry
	jobs     chan submitJob
	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

func NewSigner(registry Registry) *Signer {
	return &Signer{
		registry: registry,
		jobs:     make(chan submitJob),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

func (s *Signer) Start() {
	go s.run()
}

// Stop waits for the in-flight submission to finish.
func (s *Signer) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.doneChan
}

func (s *Signer) run() {
	defer close(s.doneChan)
	for {
		select {
		case <-s.stopChan:
			zap.L().Info("Signer stopped")
			return
		case job := <-s.jobs:
			if err := job.ctx.Err(); err != nil {
				job.result <- submitResult{err: err}
				continue
			}
			tx, err := s.registry.SubmitMembership(job.ctx, job.registryAddress, job.member, job.validUntil)
			job.result <- submitResult{tx: tx, err: err}
		}
	}
}

// Submit enqueues a membership submission and waits for its result. Mining is
// not awaited.
func (s *Signer) Submit(ctx context.Context, registryAddress, member string, validUntil time.Time) (*TxHandle, error) {
	job := submitJob{
		ctx:             ctx,
		registryAddress: registryAddress,
		member:          member,
		validUntil:      validUntil,
		result:          make(chan submitResult, 1),
	}

	select {
	case s.jobs <- job:
	case <-s.stopChan:
		return nil, ErrSignerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.tx, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
