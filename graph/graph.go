package graph

import (
	"slices"

	"github.com/mohitkumar/stepflow/model"
)

type SkipType string

const (
	NOOP      SkipType = "NOOP"
	SKIP_NODE SkipType = "SKIP_NODE"
	SKIP_TREE SkipType = "SKIP_TREE"
)

func ToSkipType(s string) SkipType {
	switch SkipType(s) {
	case SKIP_NODE:
		return SKIP_NODE
	case SKIP_TREE:
		return SKIP_TREE
	default:
		return NOOP
	}
}

// GraphVertex is one executed state instance as shown in the execution graph.
type GraphVertex struct {
	Uuid      string                `json:"uuid"`
	Name      string                `json:"name"`
	StateType string                `json:"stateType,omitempty"`
	Status    model.ExecutionStatus `json:"status"`
	StartTs   int64                 `json:"startTs,omitempty"`
	EndTs     int64                 `json:"endTs,omitempty"`
	SkipType  SkipType              `json:"skipType"`
}

// EdgeList holds every relation of a vertex. ParentId is set on chain heads
// only; PrevIds and NextIds sequence a chain; Edges lists the heads of the
// child chains.
type EdgeList struct {
	ParentId string   `json:"parentId,omitempty"`
	PrevIds  []string `json:"prevIds"`
	NextIds  []string `json:"nextIds"`
	Edges    []string `json:"edges"`
}

type OrchestrationAdjacencyList struct {
	GraphVertexMap map[string]*GraphVertex `json:"graphVertexMap"`
	AdjacencyList  map[string]*EdgeList    `json:"adjacencyList"`
}

type OrchestrationGraph struct {
	AppId         string                      `json:"appId"`
	ExecutionUuid string                      `json:"executionUuid"`
	Status        model.ExecutionStatus       `json:"status"`
	StartTs       int64                       `json:"startTs,omitempty"`
	EndTs         int64                       `json:"endTs,omitempty"`
	RootNodeIds   []string                    `json:"rootNodeIds"`
	AdjacencyList *OrchestrationAdjacencyList `json:"adjacencyList"`
}

func NewOrchestrationGraph(appId string, executionUuid string) *OrchestrationGraph {
	return &OrchestrationGraph{
		AppId:         appId,
		ExecutionUuid: executionUuid,
		AdjacencyList: &OrchestrationAdjacencyList{
			GraphVertexMap: make(map[string]*GraphVertex),
			AdjacencyList:  make(map[string]*EdgeList),
		},
	}
}

func (g *OrchestrationGraph) Vertex(id string) (*GraphVertex, bool) {
	v, ok := g.AdjacencyList.GraphVertexMap[id]
	return v, ok
}

func (g *OrchestrationGraph) Edges(id string) *EdgeList {
	el, ok := g.AdjacencyList.AdjacencyList[id]
	if !ok {
		el = &EdgeList{}
		g.AdjacencyList.AdjacencyList[id] = el
	}
	return el
}

func (g *OrchestrationGraph) AddVertex(v *GraphVertex) {
	g.AdjacencyList.GraphVertexMap[v.Uuid] = v
	g.Edges(v.Uuid)
}

// References reports whether any adjacency entry or the root list still
// mentions id.
func (g *OrchestrationGraph) References(id string) bool {
	if slices.Contains(g.RootNodeIds, id) {
		return true
	}
	for _, el := range g.AdjacencyList.AdjacencyList {
		if el.ParentId == id || slices.Contains(el.PrevIds, id) || slices.Contains(el.NextIds, id) || slices.Contains(el.Edges, id) {
			return true
		}
	}
	return false
}
