package model

import "encoding/json"

// NodeGroupType discriminates pool node-group variants.
type NodeGroupType string

const (
	NodeGroupCloud NodeGroupType = "cloud"
	NodeGroupLocal NodeGroupType = "local"
)

// NodeGroup is a closed sum over cloud and local node configurations,
// discriminated by the type field.
type NodeGroup struct {
	Type      NodeGroupType `json:"type"`
	NodeCPU   int64         `json:"node_cpu,omitempty"`
	NodeRAM   int64         `json:"node_ram,omitempty"`
	NodeCount int           `json:"node_count"`
}

// Validate checks the variant against the platform type. On-premise and demo
// platforms only accept local node groups.
func (g *NodeGroup) Validate(platform PlatformType) bool {
	switch g.Type {
	case NodeGroupCloud:
		return platform == PlatformCloud && g.NodeCPU > 0 && g.NodeRAM > 0 && g.NodeCount > 0
	case NodeGroupLocal:
		return g.NodeCount > 0
	}
	return false
}

// PoolResources carries the per-fuzzer resource ceilings of a pool.
type PoolResources struct {
	FuzzerMaxCPU   int64 `json:"fuzzer_max_cpu"`
	FuzzerMaxRAM   int64 `json:"fuzzer_max_ram"`
	FuzzerMaxTmpfs int64 `json:"fuzzer_max_tmpfs"`
}

// Pool is the pool-manager's view of a compute pool. The gateway never
// stores pools; it fetches them per request.
type Pool struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	UserID    string        `json:"user_id"`
	NodeGroup NodeGroup     `json:"node_group"`
	Resources PoolResources `json:"resources"`
}

// PlatformType gates node-group validation.
type PlatformType string

const (
	PlatformCloud  PlatformType = "cloud"
	PlatformOnPrem PlatformType = "onprem"
	PlatformDemo   PlatformType = "demo"
)

// Environment gates dangerous endpoints.
type Environment string

const (
	EnvDev  Environment = "dev"
	EnvProd Environment = "prod"
	EnvTest Environment = "test"
)

// UnmarshalPool decodes a pool-manager response body.
func UnmarshalPool(data []byte) (*Pool, error) {
	var p Pool
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}
