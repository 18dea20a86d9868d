package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/knograph/kgcoord/kg"
)

// EtcdConfig holds connection settings for the etcd-backed registry.
type EtcdConfig struct {
	// Endpoints is the etcd cluster to connect to. Required.
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace prefixes every registry key. Default: "kgcoord".
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the lease time-to-live in seconds. An agent that stops
	// renewing disappears after at most this long. Default: 30.
	TTL int `json:"ttl" yaml:"ttl"`

	// TLS enables mutual TLS with the etcd cluster.
	TLS *TLSConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// EtcdRegistry registers agents in etcd under /namespace/agents/role/
// instance-id, each entry bound to a lease that a background goroutine
// renews every TTL/3. Crashed agents drop out of discovery when their
// lease expires.
type EtcdRegistry struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	mu        sync.Mutex
	leases    map[string]clientv3.LeaseID
	cancelFns map[string]context.CancelFunc
	wg        sync.WaitGroup
	closed    bool
	closedCh  chan struct{}
}

// NewEtcdRegistry connects to etcd and verifies connectivity.
func NewEtcdRegistry(cfg EtcdConfig) (*EtcdRegistry, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "kgcoord"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30
	}

	tlsConfig, err := clientTLS(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
		TLS:         tlsConfig,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := cli.Get(ctx, "health-check"); err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &EtcdRegistry{
		client:    cli,
		namespace: cfg.Namespace,
		ttl:       cfg.TTL,
		leases:    make(map[string]clientv3.LeaseID),
		cancelFns: make(map[string]context.CancelFunc),
		closedCh:  make(chan struct{}),
	}, nil
}

// Register stores the agent entry under a fresh lease and starts its
// keepalive. Re-registering the same instance replaces the entry.
func (r *EtcdRegistry) Register(ctx context.Context, info AgentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, ok := r.cancelFns[info.InstanceID]; ok {
		cancelFn()
		delete(r.cancelFns, info.InstanceID)
	}

	lease, err := r.client.Grant(ctx, int64(r.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal agent info: %w", err)
	}

	key := r.agentKey(info.Role, info.InstanceID)
	if _, err := r.client.Put(ctx, key, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	r.leases[info.InstanceID] = lease.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	r.cancelFns[info.InstanceID] = cancel
	r.wg.Add(1)
	go r.keepalive(keepaliveCtx, lease.ID, info.InstanceID)

	return nil
}

// Deregister revokes the instance's lease, removing its entry.
func (r *EtcdRegistry) Deregister(ctx context.Context, info AgentInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, ok := r.cancelFns[info.InstanceID]; ok {
		cancelFn()
		delete(r.cancelFns, info.InstanceID)
	}

	leaseID, ok := r.leases[info.InstanceID]
	if !ok {
		return nil
	}
	if _, err := r.client.Revoke(ctx, leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	delete(r.leases, info.InstanceID)
	return nil
}

// Discover returns all live instances registered under the role.
func (r *EtcdRegistry) Discover(ctx context.Context, role kg.Role) ([]AgentInfo, error) {
	prefix := fmt.Sprintf("/%s/agents/%s/", r.namespace, role)
	resp, err := r.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to discover agents: %w", err)
	}

	instances := make([]AgentInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info AgentInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		instances = append(instances, info)
	}
	return instances, nil
}

// Coordinator returns a registered knowledge manager.
func (r *EtcdRegistry) Coordinator(ctx context.Context) (AgentInfo, error) {
	instances, err := r.Discover(ctx, kg.RoleKnowledgeManager)
	if err != nil {
		return AgentInfo{}, err
	}
	if len(instances) == 0 {
		return AgentInfo{}, ErrNoCoordinator
	}
	return instances[0], nil
}

// Close stops all keepalives and closes the etcd connection.
func (r *EtcdRegistry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for _, cancel := range r.cancelFns {
		cancel()
	}
	r.cancelFns = make(map[string]context.CancelFunc)
	close(r.closedCh)
	r.mu.Unlock()

	r.wg.Wait()
	return r.client.Close()
}

// keepalive renews the lease every TTL/3 until canceled or the lease
// becomes invalid.
func (r *EtcdRegistry) keepalive(ctx context.Context, leaseID clientv3.LeaseID, instanceID string) {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Duration(r.ttl) * time.Second / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.closedCh:
			return
		case <-ticker.C:
			if _, err := r.client.KeepAliveOnce(context.Background(), leaseID); err != nil {
				r.mu.Lock()
				delete(r.leases, instanceID)
				delete(r.cancelFns, instanceID)
				r.mu.Unlock()
				return
			}
		}
	}
}

func (r *EtcdRegistry) agentKey(role kg.Role, instanceID string) string {
	return fmt.Sprintf("/%s/agents/%s/%s", r.namespace, role, instanceID)
}
