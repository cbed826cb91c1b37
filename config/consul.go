package config

import (
	"fmt"
	"strings"

	"github.com/hashicorp/consul/api"
)

// ConsulKV is the part of the Consul KV API used by LoadConsul. *api.KV implements it.
type ConsulKV interface {
	List(prefix string, q *api.QueryOptions) (api.KVPairs, *api.QueryMeta, error)
}

var _ ConsulKV = (*api.KV)(nil)

// NewConsulKV connects to the Consul agent at address, or to the agent described by the
// standard CONSUL_* environment variables if address is empty.
func NewConsulKV(address string) (ConsulKV, error) {
	cfg := api.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}
	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create Consul client: %w", err)
	}
	return client.KV(), nil
}

// LoadConsul reads every key under prefix. The variable name is the key with the prefix
// removed, so with prefix "fitnesse/" the key "fitnesse/TEST_RUNNER" defines TEST_RUNNER.
// Keys in nested folders are skipped.
func LoadConsul(kv ConsulKV, prefix string) (Variables, error) {
	pairs, _, err := kv.List(prefix, nil)
	if err != nil {
		return nil, fmt.Errorf("cannot list Consul keys under %q: %w", prefix, err)
	}
	ret := make(Variables, len(pairs))
	for _, pair := range pairs {
		if pair == nil {
			continue
		}
		name := strings.TrimPrefix(pair.Key, prefix)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		ret[name] = string(pair.Value)
	}
	return ret, nil
}
