package graph

import (
	"github.com/mohitkumar/stepflow/logger"
	"github.com/mohitkumar/stepflow/util"
	"go.uber.org/zap"
)

// Skipper removes a vertex from a materialized graph and keeps every remaining
// relation consistent.
type Skipper interface {
	Skip(g *OrchestrationGraph, v *GraphVertex)
}

var (
	_ Skipper = NoopSkipper{}
	_ Skipper = SkipNodeSkipper{}
	_ Skipper = SkipTreeSkipper{}
)

func SkipperFor(skipType SkipType) Skipper {
	switch skipType {
	case SKIP_NODE:
		return SkipNodeSkipper{}
	case SKIP_TREE:
		return SkipTreeSkipper{}
	default:
		return NoopSkipper{}
	}
}

type NoopSkipper struct{}

func (NoopSkipper) Skip(*OrchestrationGraph, *GraphVertex) {}

// SkipNodeSkipper removes a single vertex and splices its children into the
// slot it held.
type SkipNodeSkipper struct{}

func (SkipNodeSkipper) Skip(g *OrchestrationGraph, v *GraphVertex) {
	if v == nil {
		return
	}
	id := v.Uuid
	el, ok := g.AdjacencyList.AdjacencyList[id]
	if !ok {
		return
	}
	heads := append([]string(nil), el.Edges...)
	if len(heads) == 0 {
		bridge(g, id, el)
	} else {
		promote(g, id, el, heads, tails(g, heads))
	}
	remove(g, id)
}

// SkipTreeSkipper removes a vertex together with its whole subgraph.
type SkipTreeSkipper struct{}

func (SkipTreeSkipper) Skip(g *OrchestrationGraph, v *GraphVertex) {
	if v == nil {
		return
	}
	id := v.Uuid
	el, ok := g.AdjacencyList.AdjacencyList[id]
	if !ok {
		return
	}
	for _, d := range descendants(g, el.Edges) {
		remove(g, d)
	}
	bridge(g, id, el)
	remove(g, id)
}

// promote puts heads in the slot of id and links tails to the successors of id.
func promote(g *OrchestrationGraph, id string, el *EdgeList, heads []string, tails []string) {
	switch {
	case len(el.PrevIds) > 0:
		for _, p := range el.PrevIds {
			prev := g.Edges(p)
			prev.NextIds = util.Replace(prev.NextIds, id, heads...)
		}
		for _, h := range heads {
			head := g.Edges(h)
			head.ParentId = ""
			head.PrevIds = util.AppendUnique(util.Remove(head.PrevIds, id), el.PrevIds...)
		}
	case len(el.ParentId) > 0:
		parent := g.Edges(el.ParentId)
		parent.Edges = util.Replace(parent.Edges, id, heads...)
		for _, h := range heads {
			head := g.Edges(h)
			head.ParentId = el.ParentId
			head.PrevIds = nil
		}
	default:
		g.RootNodeIds = util.Replace(g.RootNodeIds, id, heads...)
		for _, h := range heads {
			head := g.Edges(h)
			head.ParentId = ""
			head.PrevIds = nil
		}
	}
	for _, t := range tails {
		tail := g.Edges(t)
		tail.NextIds = util.AppendUnique(tail.NextIds, el.NextIds...)
	}
	for _, n := range el.NextIds {
		next := g.Edges(n)
		next.PrevIds = util.Replace(next.PrevIds, id, tails...)
	}
}

// bridge links the predecessors of id straight to its successors. With no
// predecessor the successors take over the slot of id.
func bridge(g *OrchestrationGraph, id string, el *EdgeList) {
	switch {
	case len(el.PrevIds) > 0:
		for _, p := range el.PrevIds {
			prev := g.Edges(p)
			prev.NextIds = util.Replace(prev.NextIds, id, el.NextIds...)
		}
		for _, n := range el.NextIds {
			next := g.Edges(n)
			next.PrevIds = util.Replace(next.PrevIds, id, el.PrevIds...)
		}
	case len(el.ParentId) > 0:
		parent := g.Edges(el.ParentId)
		parent.Edges = util.Replace(parent.Edges, id, newHeads(g, id, el.NextIds)...)
		for _, n := range el.NextIds {
			next := g.Edges(n)
			if len(next.PrevIds) == 0 {
				next.ParentId = el.ParentId
			}
		}
	default:
		g.RootNodeIds = util.Replace(g.RootNodeIds, id, newHeads(g, id, el.NextIds)...)
	}
}

// newHeads drops id from the predecessors of successors and returns the ones
// left without any predecessor.
func newHeads(g *OrchestrationGraph, id string, successors []string) []string {
	var heads []string
	for _, n := range successors {
		next := g.Edges(n)
		next.PrevIds = util.Remove(next.PrevIds, id)
		if len(next.PrevIds) == 0 {
			heads = append(heads, n)
		}
	}
	return heads
}

// tails follows the chains starting at heads and returns their last vertices.
func tails(g *OrchestrationGraph, heads []string) []string {
	var out []string
	seen := make(map[string]bool)
	queue := append([]string(nil), heads...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		el, ok := g.AdjacencyList.AdjacencyList[id]
		if !ok || len(el.NextIds) == 0 {
			out = util.AppendUnique(out, id)
			continue
		}
		queue = append(queue, el.NextIds...)
	}
	return out
}

// descendants returns every vertex reachable from the child heads through
// sequencing or child edges.
func descendants(g *OrchestrationGraph, heads []string) []string {
	var out []string
	seen := make(map[string]bool)
	queue := append([]string(nil), heads...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
		if el, ok := g.AdjacencyList.AdjacencyList[id]; ok {
			queue = append(queue, el.NextIds...)
			queue = append(queue, el.Edges...)
		}
	}
	return out
}

// remove deletes the vertex and every reference to it.
func remove(g *OrchestrationGraph, id string) {
	delete(g.AdjacencyList.GraphVertexMap, id)
	delete(g.AdjacencyList.AdjacencyList, id)
	g.RootNodeIds = util.Remove(g.RootNodeIds, id)
	for _, el := range g.AdjacencyList.AdjacencyList {
		if el.ParentId == id {
			el.ParentId = ""
		}
		el.PrevIds = util.Remove(el.PrevIds, id)
		el.NextIds = util.Remove(el.NextIds, id)
		el.Edges = util.Remove(el.Edges, id)
	}
}

// SkipAll applies the skipper of every vertex flagged for skipping.
func SkipAll(g *OrchestrationGraph) {
	var skipped []*GraphVertex
	for _, v := range g.AdjacencyList.GraphVertexMap {
		if v.SkipType != NOOP && len(v.SkipType) > 0 {
			skipped = append(skipped, v)
		}
	}
	for _, v := range skipped {
		if _, ok := g.Vertex(v.Uuid); !ok {
			continue
		}
		logger.Debug("skipping vertex", zap.String("vertex", v.Uuid), zap.String("skipType", string(v.SkipType)))
		SkipperFor(v.SkipType).Skip(g, v)
	}
}
