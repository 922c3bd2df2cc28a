// Copyright 2020 Grail Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package filter

import (
	"context"
	"fmt"

	"github.com/grailbio/base/log"
	"github.com/grailbio/scgeno/pileup"
	"github.com/pkg/errors"
)

// Node is one subcluster in the recursive bipartition tree.
type Node struct {
	// Marker is the subcluster's path label: "" for the root, "A"/"B" for
	// its children, "AA", "AB", ... below that.  It is only used for
	// diagnostics.
	Marker   string
	Mapping  *Mapping
	Parent   *Node
	Children []*Node
	Depth    int
	// Result is the filter output for this subcluster, set once the node has
	// been processed.
	Result Result
}

// ChildMarker returns the marker of the i-th child of a node with marker
// parent.
func ChildMarker(parent string, i int) string {
	if i < 26 {
		return parent + string(rune('A'+i))
	}
	return fmt.Sprintf("%s[%d]", parent, i)
}

// Splitter decides how a subcluster is subdivided.  It is implemented by the
// clustering algorithm.
type Splitter interface {
	// Split returns the mappings of node's subclusters, given node.Result.
	// Returning no mappings makes node a leaf.
	Split(ctx context.Context, node *Node) ([]*Mapping, error)
}

// Hierarchy runs a Filter over a tree of subclusters.
type Hierarchy struct {
	Filter       *Filter
	SeqErrorRate float64
	Parallelism  int
	// MinCoverage stops subdivision of nodes whose filtered average coverage
	// is below this value.
	MinCoverage float64
	// MaxDepth stops subdivision at this depth; 0 means unlimited.
	MaxDepth int
}

// Run filters p for root and then for every subcluster the splitter
// produces, breadth first.  It returns the root of the resulting tree.  Any
// filter or splitter error aborts the walk.
func (h *Hierarchy) Run(ctx context.Context, p pileup.Pileup, root *Mapping, s Splitter) (*Node, error) {
	rootNode := &Node{Mapping: root}
	queue := []*Node{rootNode}
	nProcessed := 0
	for len(queue) > 0 {
		node := queue[0]
		queue[0] = nil
		queue = queue[1:]
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result, err := h.Filter.Filter(p, node.Mapping, node.Marker, h.SeqErrorRate, h.Parallelism)
		if err != nil {
			return nil, err
		}
		node.Result = result
		nProcessed++
		if result.NumKept == 0 || result.AvgCoverage < h.MinCoverage || (h.MaxDepth > 0 && node.Depth >= h.MaxDepth) {
			log.Debug.Printf("Hierarchy.Run: %q is a leaf (%d kept, coverage %.3f, depth %d)", node.Marker, result.NumKept, result.AvgCoverage, node.Depth)
			continue
		}
		mappings, err := s.Split(ctx, node)
		if err != nil {
			return nil, errors.Wrapf(err, "Hierarchy.Run: splitting %q", node.Marker)
		}
		for i, m := range mappings {
			child := &Node{
				Marker:  ChildMarker(node.Marker, i),
				Mapping: m,
				Parent:  node,
				Depth:   node.Depth + 1,
			}
			node.Children = append(node.Children, child)
			queue = append(queue, child)
		}
	}
	log.Printf("Hierarchy.Run: processed %d subclusters", nProcessed)
	return rootNode, nil
}

// Walk calls fn on every node of the tree rooted at n, parents before
// children.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
