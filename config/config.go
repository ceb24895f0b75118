// Package config loads the reference host's cluster topology and engine
// tuning parameters from a YAML file, the same shape and library
// (gopkg.in/yaml.v3) the originating sketch used for its node list.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	rpcx "github.com/smallnest/rpcx/client"
	"gopkg.in/yaml.v3"
)

// Node describes one cluster member as seen from the config file: its raft
// id, its RPC address, and whether it starts as a voting member.
type Node struct {
	ID      uint32 `yaml:"id"`
	Address string `yaml:"address"`
	Port    string `yaml:"port"`
	Voting  bool   `yaml:"voting"`

	Conn rpcx.XClient `yaml:"-"`
}

// Connect lazily dials the node over rpcx, using peer-to-peer discovery and
// failover call style, and caches the client on the Node.
func (n *Node) Connect() error {
	if n.Conn != nil {
		return nil
	}
	d, err := rpcx.NewPeer2PeerDiscovery("tcp@"+n.GetAddress(), "")
	if err != nil {
		return fmt.Errorf("config: discover node %d: %w", n.ID, err)
	}
	// "Raft" must match transport.ServiceName; duplicated as a literal here
	// rather than imported to avoid config depending on transport.
	n.Conn = rpcx.NewXClient("Raft", rpcx.Failover, rpcx.RandomSelect, d, rpcx.DefaultOption)
	return nil
}

// Client lazily dials the node (see Connect) and returns the cached rpcx
// client, satisfying transport.Dialer.
func (n *Node) Client() (rpcx.XClient, error) {
	if err := n.Connect(); err != nil {
		return nil, err
	}
	return n.Conn, nil
}

// Close releases the node's rpcx client, if one was ever dialed.
func (n *Node) Close() error {
	if n.Conn == nil {
		return nil
	}
	err := n.Conn.Close()
	n.Conn = nil
	return err
}

// GetAddress returns the "host:port" dial string for this node.
func (n *Node) GetAddress() string {
	return net.JoinHostPort(n.Address, n.Port)
}

// Config is the full reference-host configuration: cluster topology plus
// engine tuning (§6 Configuration) and storage location.
type Config struct {
	// SelfID picks which entry of Nodes this process is.
	SelfID uint32 `yaml:"self_id"`

	// Dir is the directory the reference host's storage package persists
	// the log and metadata under, one subdirectory per SelfID.
	Dir string `yaml:"dir"`

	Nodes []Node `yaml:"nodes"`

	ElectionTimeoutMs     int `yaml:"election_timeout_ms"`
	RequestTimeoutMs      int `yaml:"request_timeout_ms"`
	MaxAppendEntriesBatch int `yaml:"max_append_entries_batch"`
}

// Defaults matching SPEC_FULL.md §6.
const (
	DefaultElectionTimeoutMs     = 1000
	DefaultRequestTimeoutMs      = 200
	DefaultMaxAppendEntriesBatch = 8
)

// GetNode returns the config entry for id.
func (c *Config) GetNode(id uint32) (Node, error) {
	for _, n := range c.Nodes {
		if n.ID == id {
			return n, nil
		}
	}
	return Node{}, fmt.Errorf("config: node %d not found", id)
}

// SelfNode returns the config entry matching SelfID.
func (c *Config) SelfNode() (Node, error) {
	return c.GetNode(c.SelfID)
}

// ApplyDefaults fills zero-valued tuning fields with the spec's defaults.
func (c *Config) ApplyDefaults() {
	if c.ElectionTimeoutMs <= 0 {
		c.ElectionTimeoutMs = DefaultElectionTimeoutMs
	}
	if c.RequestTimeoutMs <= 0 {
		c.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if c.MaxAppendEntriesBatch <= 0 {
		c.MaxAppendEntriesBatch = DefaultMaxAppendEntriesBatch
	}
}

// Validate checks that the configuration is usable, after ApplyDefaults.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return errors.New("config: directory not specified")
	}
	if len(c.Nodes) == 0 {
		return errors.New("config: no nodes configured")
	}
	if _, err := c.SelfNode(); err != nil {
		return fmt.Errorf("config: self_id %d: %w", c.SelfID, err)
	}
	if c.RequestTimeoutMs >= c.ElectionTimeoutMs {
		return errors.New("config: request_timeout_ms must be less than election_timeout_ms")
	}
	seen := make(map[uint32]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if seen[n.ID] {
			return fmt.Errorf("config: duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// ElectionTimeout returns ElectionTimeoutMs as a time.Duration.
func (c *Config) ElectionTimeout() time.Duration {
	return time.Duration(c.ElectionTimeoutMs) * time.Millisecond
}

// RequestTimeout returns RequestTimeoutMs as a time.Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMs) * time.Millisecond
}

// ReadConfig loads and validates a YAML config file.
func ReadConfig(file string) (*Config, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", file, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", file, err)
	}
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
