// cluster.go: Cluster-wide deploy relay
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package godeploy

import (
	"context"
	"sort"
	"sync"
)

// Node is one cluster member able to deploy and report modules.
type Node interface {
	ID() string
	Deploy(ctx context.Context, req DeployRequest) (NodeResult, error)
	Read(ctx context.Context) (map[string]ModuleSummary, error)
}

// LocalNode adapts a Deployer running in this process.
type LocalNode struct {
	Deployer *Deployer
}

// NewLocalNode wraps d as a Node.
func NewLocalNode(d *Deployer) *LocalNode { return &LocalNode{Deployer: d} }

// ID implements Node
func (n *LocalNode) ID() string { return n.Deployer.NodeID() }

// Deploy implements Node
func (n *LocalNode) Deploy(ctx context.Context, req DeployRequest) (NodeResult, error) {
	return n.Deployer.Deploy(ctx, req)
}

// Read implements Node
func (n *LocalNode) Read(_ context.Context) (map[string]ModuleSummary, error) {
	return n.Deployer.Read(), nil
}

// Cluster relays a deploy request to every node and aggregates the results.
type Cluster struct {
	mu     sync.RWMutex
	nodes  []Node
	logger Logger
}

// NewCluster creates a cluster over nodes.
func NewCluster(logger any, nodes ...Node) *Cluster {
	return &Cluster{nodes: nodes, logger: NewLogger(logger).With("component", "cluster")}
}

// AddNode adds n to the cluster.
func (c *Cluster) AddNode(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, n)
}

// Nodes returns the cluster members.
func (c *Cluster) Nodes() []Node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Node(nil), c.nodes...)
}

// Deploy sends req to every node concurrently. The response is deployed only
// when every node succeeded; results are sorted by node id.
func (c *Cluster) Deploy(ctx context.Context, req DeployRequest) ClusterResponse {
	nodes := c.Nodes()
	results := make([]NodeResult, len(nodes))

	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.deployOn(ctx, node, req)
			if err != nil {
				res.Success = false
				if res.Error == "" {
					res.Error = err.Error()
				}
				c.logger.Warn("Node deploy failed", "node", node.ID(), "module", req.Name, "error", err)
			}
			if res.Node == "" {
				res.Node = node.ID()
			}
			if res.Name == "" {
				res.Name = req.Name
			}
			results[i] = res
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Node < results[j].Node })
	resp := ClusterResponse{Nodes: results, Deployed: len(results) > 0}
	for _, r := range results {
		resp.Deployed = resp.Deployed && r.Success
	}
	c.logger.Info("Cluster deploy finished", "module", req.Name, "nodes", len(results), "deployed", resp.Deployed)
	return resp
}

func (c *Cluster) deployOn(ctx context.Context, node Node, req DeployRequest) (res NodeResult, err error) {
	err = safeCall(func() error {
		var callErr error
		res, callErr = node.Deploy(ctx, req)
		return callErr
	})
	return res, err
}

// Read collects module summaries from every node, keyed by node id. Nodes
// that fail to answer are logged and left out.
func (c *Cluster) Read(ctx context.Context) map[string]map[string]ModuleSummary {
	nodes := c.Nodes()
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]map[string]ModuleSummary, len(nodes))
	)
	for _, node := range nodes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			modules, err := node.Read(ctx)
			if err != nil {
				c.logger.Warn("Node read failed", "node", node.ID(), "error", err)
				return
			}
			mu.Lock()
			out[node.ID()] = modules
			mu.Unlock()
		}()
	}
	wg.Wait()
	return out
}
