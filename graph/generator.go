package graph

import (
	"sort"

	"github.com/mohitkumar/stepflow/model"
	"github.com/mohitkumar/stepflow/util"
)

// Generate builds the graph of one execution from its hop records. A hop
// follows the instance named by PrevInstanceId; the first hop of a spawned
// chain becomes a child of ParentInstanceId; everything else is a root.
// skipTypes maps state names to their skip classification.
func Generate(appId string, executionUuid string, instances []*model.StateExecutionInstance, skipTypes map[string]SkipType) *OrchestrationGraph {
	g := NewOrchestrationGraph(appId, executionUuid)
	ordered := append([]*model.StateExecutionInstance(nil), instances...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt < ordered[j].CreatedAt
	})
	for _, inst := range ordered {
		skipType, ok := skipTypes[inst.StateName]
		if !ok {
			skipType = NOOP
		}
		g.AddVertex(&GraphVertex{
			Uuid:      inst.Uuid,
			Name:      inst.StateName,
			StateType: inst.StateType,
			Status:    inst.Status,
			StartTs:   inst.StartTs,
			EndTs:     inst.EndTs,
			SkipType:  skipType,
		})
	}
	for _, inst := range ordered {
		el := g.Edges(inst.Uuid)
		if _, ok := g.Vertex(inst.PrevInstanceId); ok && len(inst.PrevInstanceId) > 0 {
			prev := g.Edges(inst.PrevInstanceId)
			prev.NextIds = util.AppendUnique(prev.NextIds, inst.Uuid)
			el.PrevIds = util.AppendUnique(el.PrevIds, inst.PrevInstanceId)
			continue
		}
		if _, ok := g.Vertex(inst.ParentInstanceId); ok && len(inst.ParentInstanceId) > 0 {
			parent := g.Edges(inst.ParentInstanceId)
			parent.Edges = util.AppendUnique(parent.Edges, inst.Uuid)
			el.ParentId = inst.ParentInstanceId
			continue
		}
		g.RootNodeIds = append(g.RootNodeIds, inst.Uuid)
	}
	summarize(g, ordered)
	return g
}

// summarize derives the execution status and time span. The execution is
// running while any hop is, otherwise it takes the status of its last root
// chain hop.
func summarize(g *OrchestrationGraph, instances []*model.StateExecutionInstance) {
	g.Status = model.SUCCESS
	for _, inst := range instances {
		if inst.StartTs > 0 && (g.StartTs == 0 || inst.StartTs < g.StartTs) {
			g.StartTs = inst.StartTs
		}
		if inst.EndTs > g.EndTs {
			g.EndTs = inst.EndTs
		}
		if !inst.Status.IsFinal() {
			g.Status = model.RUNNING
		}
	}
	if len(instances) == 0 {
		g.Status = model.NEW
		return
	}
	if g.Status == model.RUNNING {
		g.EndTs = 0
		return
	}
	for _, t := range tails(g, g.RootNodeIds) {
		if v, ok := g.Vertex(t); ok && v.Status != model.SUCCESS {
			g.Status = v.Status
		}
	}
}
