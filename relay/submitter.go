package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/retry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/jinmel/safe-relay/safe"
)

const terminalCacheSize = 1024

// Metricer records submitter activity.
type Metricer interface {
	RecordSubmission(outcome string)
	RecordTaskStatus(status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSubmission(string) {}
func (noopMetrics) RecordTaskStatus(string) {}

var NoopMetrics Metricer = noopMetrics{}

// RetryPolicy bounds resubmission of a request the relay could not take.
type RetryPolicy struct {
	MaxAttempts int
	Strategy    retry.Strategy
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Strategy: retry.Exponential()}
}

type Submitter struct {
	log       log.Logger
	service   Service
	predictor *safe.AddressPredictor
	metrics   Metricer

	// terminal holds tasks that reached Success or Failed.
	terminal *lru.Cache[string, Task]
}

func NewSubmitter(log log.Logger, service Service, predictor *safe.AddressPredictor, m Metricer) *Submitter {
	if m == nil {
		m = NoopMetrics
	}
	cache, err := lru.New[string, Task](terminalCacheSize)
	if err != nil {
		panic(err)
	}
	return &Submitter{
		log:       log,
		service:   service,
		predictor: predictor,
		metrics:   m,
		terminal:  cache,
	}
}

// Submit hands a signed request to the relay once.
func (s *Submitter) Submit(ctx context.Context, signed safe.SignedRelayRequest) (Task, error) {
	call, err := signed.RelayCall(s.predictor)
	if err != nil {
		s.metrics.RecordSubmission("invalid")
		return Task{}, err
	}
	id, err := s.service.Submit(ctx, call)
	if err != nil {
		s.metrics.RecordSubmission(safe.KindOf(err).String())
		return Task{}, err
	}
	s.metrics.RecordSubmission("accepted")
	task := Task{ID: id, Status: Pending, StatusURL: s.service.StatusURL(id)}
	s.log.Info("Submitted relay task", "task", id, "account", signed.Request.Account().Address, "target", call.Target)
	return task, nil
}

// SubmitWithRetry resubmits the same signed request while the relay is
// unavailable, up to policy.MaxAttempts. Any other failure ends it at once.
func (s *Submitter) SubmitWithRetry(ctx context.Context, signed safe.SignedRelayRequest, policy RetryPolicy) (Task, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	strategy := policy.Strategy
	if strategy == nil {
		strategy = retry.Fixed(0)
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := strategy.Duration(i - 1)
			s.log.Warn("Relay unavailable, retrying", "attempt", i+1, "max", attempts, "wait", wait, "err", lastErr)
			select {
			case <-ctx.Done():
				return Task{}, errors.Join(lastErr, ctx.Err())
			case <-time.After(wait):
			}
		}
		task, err := s.Submit(ctx, signed)
		if err == nil {
			return task, nil
		}
		if !errors.Is(err, safe.ErrRelayUnavailable) {
			return Task{}, err
		}
		lastErr = err
	}
	return Task{}, fmt.Errorf("gave up after %d attempts: %w", attempts, lastErr)
}

// Poll re-reads the status of a task. Terminal tasks are returned as they
// are without asking the relay again.
func (s *Submitter) Poll(ctx context.Context, task Task) (Task, error) {
	if task.Status.Terminal() {
		return task, nil
	}
	if cached, ok := s.terminal.Get(task.ID); ok {
		return cached, nil
	}
	report, err := s.service.TaskStatus(ctx, task.ID)
	if err != nil {
		return task, err
	}
	s.metrics.RecordTaskStatus(string(report.Status))

	next := task
	if next.StatusURL == "" {
		next.StatusURL = s.service.StatusURL(task.ID)
	}
	next.Status = report.Status
	if report.Status == "" {
		next.Status = Pending
	}
	if report.TxHash != (common.Hash{}) {
		next.TxHash = report.TxHash
	}
	next.Reason = report.Reason
	if next.Status.Terminal() {
		s.terminal.Add(task.ID, next)
		s.log.Info("Relay task finished", "task", task.ID, "status", next.Status, "tx", next.TxHash, "reason", next.Reason)
	}
	return next, nil
}

// PollID polls a task known only by its id.
func (s *Submitter) PollID(ctx context.Context, id string) (Task, error) {
	if id == "" {
		return Task{}, safe.NewError(safe.KindConfiguration, "poll", errors.New("empty task id"))
	}
	return s.Poll(ctx, Task{ID: id, Status: Pending, StatusURL: s.service.StatusURL(id)})
}

// Wait polls at most once per interval until the task is terminal or ctx
// is done. Retriable read failures are logged and polling continues.
func (s *Submitter) Wait(ctx context.Context, task Task, interval time.Duration) (Task, error) {
	if interval <= 0 {
		return task, safe.NewError(safe.KindConfiguration, "wait", fmt.Errorf("poll interval must be positive, got %s", interval))
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return task, err
		}
		next, err := s.Poll(ctx, task)
		if err != nil {
			if !safe.IsRetriable(err) {
				return task, err
			}
			s.log.Warn("Failed to poll relay task", "task", task.ID, "err", err)
			continue
		}
		task = next
		if task.Status.Terminal() {
			return task, nil
		}
	}
}
