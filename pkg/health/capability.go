package health

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/contentflow-sub002/pkg/metrics"
	"github.com/Azure/contentflow-sub002/pkg/storage"
)

// CheckTypeCapability identifies a checker that probes one of the core's
// capability bindings (Queue, Registry, BlobStore, Identity) rather than a
// generic network endpoint.
const CheckTypeCapability CheckType = "capability"

// QueueChecker reports a Queue binding healthy if ApproxLen succeeds.
type QueueChecker struct{ Queue storage.Queue }

func (c QueueChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.Queue.ApproxLen(ctx)
	return resultFromErr(start, err, "queue reachable")
}

func (c QueueChecker) Type() CheckType { return CheckTypeCapability }

// RegistryChecker reports a Registry binding healthy if a Get against
// probeContainer/probeID does not return a transient error (ErrNotFound is
// expected and healthy — it proves the round trip worked).
type RegistryChecker struct {
	Registry       storage.Registry
	ProbeContainer string
	ProbeID        string
}

func (c RegistryChecker) Check(ctx context.Context) Result {
	start := time.Now()
	_, err := c.Registry.Get(ctx, c.ProbeContainer, c.ProbeID)
	if errors.Is(err, storage.ErrNotFound) {
		err = nil
	}
	return resultFromErr(start, err, "registry reachable")
}

func (c RegistryChecker) Type() CheckType { return CheckTypeCapability }

// BlobChecker reports a BlobStore binding healthy if listing a prefix does
// not surface an error on its first (possibly absent) entry.
type BlobChecker struct {
	Blobs  storage.BlobStore
	Prefix string
}

func (c BlobChecker) Check(ctx context.Context) Result {
	start := time.Now()
	var err error
	for _, e := range c.Blobs.List(ctx, c.Prefix) {
		err = e
		break
	}
	return resultFromErr(start, err, "blob store reachable")
}

func (c BlobChecker) Type() CheckType { return CheckTypeCapability }

// CredentialChecker reports an Identity binding healthy if Verify succeeds.
type CredentialChecker struct{ Identity storage.Identity }

func (c CredentialChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.Identity.Verify(ctx)
	return resultFromErr(start, err, "credential valid")
}

func (c CredentialChecker) Type() CheckType { return CheckTypeCapability }

func resultFromErr(start time.Time, err error, okMessage string) Result {
	if err != nil {
		return Result{Healthy: false, Message: err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	return Result{Healthy: true, Message: okMessage, CheckedAt: start, Duration: time.Since(start)}
}

// NewNetworkChecker builds a TCPChecker against rawURL's host, defaulting
// to port 443 when rawURL names none. It is a lightweight preflight a
// supervisor can run before attempting a full credentialed SDK call
// against a configured endpoint (the Cosmos DB account, a storage
// account) — a DNS/firewall problem fails fast as a TCP dial error instead
// of surfacing as an opaque SDK timeout deep in the worker loop.
func NewNetworkChecker(rawURL string) (*TCPChecker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint url: %w", err)
	}
	host := u.Host
	if host == "" {
		host = u.Path
	}
	if host == "" {
		return nil, fmt.Errorf("endpoint url %q has no host", rawURL)
	}
	if u.Port() == "" {
		host = host + ":443"
	}
	return NewTCPChecker(host), nil
}

// Monitor periodically runs a fixed set of named Checkers and mirrors each
// one's Status into pkg/metrics's component registry, so the supervisor's
// status surface and /ready endpoint reflect live capability health rather
// than only "process is up."
type Monitor struct {
	mu       sync.Mutex
	checkers map[string]Checker
	statuses map[string]*Status
	config   Config
}

// NewMonitor builds a Monitor using config for the consecutive-failure
// threshold and per-check timeout every registered Checker is subject to.
func NewMonitor(config Config) *Monitor {
	return &Monitor{
		checkers: make(map[string]Checker),
		statuses: make(map[string]*Status),
		config:   config,
	}
}

// Register adds a named Checker to the monitor's rotation.
func (m *Monitor) Register(name string, checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
	m.statuses[name] = NewStatus()
}

// RunOnce executes every registered Checker once, updates its Status, and
// publishes the outcome to pkg/metrics's component registry.
func (m *Monitor) RunOnce(ctx context.Context) {
	m.mu.Lock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.Unlock()

	for name, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
		result := checker.Check(checkCtx)
		cancel()

		m.mu.Lock()
		status := m.statuses[name]
		status.Update(result, m.config)
		m.mu.Unlock()

		metrics.UpdateComponent(name, status.Healthy, result.Message)
	}
}

// Start runs RunOnce every config.Interval until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.RunOnce(ctx)
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}
