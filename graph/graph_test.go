package graph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mohitkumar/stepflow/model"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	g        *OrchestrationGraph
	vertices map[string]*GraphVertex
}

func newFixture(names ...string) *fixture {
	f := &fixture{
		g:        NewOrchestrationGraph("app", "exec"),
		vertices: make(map[string]*GraphVertex),
	}
	for _, name := range names {
		v := &GraphVertex{Uuid: uuid.New().String(), Name: name, SkipType: NOOP, Status: model.SUCCESS}
		f.vertices[name] = v
		f.g.AddVertex(v)
	}
	return f
}

func (f *fixture) id(name string) string {
	return f.vertices[name].Uuid
}

func (f *fixture) ids(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, f.id(n))
	}
	return out
}

func (f *fixture) chain(from string, to string) {
	prev := f.g.Edges(f.id(from))
	prev.NextIds = append(prev.NextIds, f.id(to))
	next := f.g.Edges(f.id(to))
	next.PrevIds = append(next.PrevIds, f.id(from))
}

func (f *fixture) child(parent string, child string) {
	p := f.g.Edges(f.id(parent))
	p.Edges = append(p.Edges, f.id(child))
	f.g.Edges(f.id(child)).ParentId = f.id(parent)
}

func (f *fixture) edges(name string) *EdgeList {
	return f.g.AdjacencyList.AdjacencyList[f.id(name)]
}

func (f *fixture) requireRemoved(t *testing.T, name string) {
	id := f.id(name)
	_, ok := f.g.Vertex(id)
	require.False(t, ok)
	require.NotContains(t, f.g.AdjacencyList.AdjacencyList, id)
	require.False(t, f.g.References(id))
}

func (f *fixture) requireVertices(t *testing.T, names ...string) {
	require.ElementsMatch(t, f.ids(names...), keys(f.g.AdjacencyList.GraphVertexMap))
	require.Len(t, f.g.AdjacencyList.AdjacencyList, len(names))
}

func keys(m map[string]*GraphVertex) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSkipNodeSkipper(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T){
		"chain with previous and next":       testSkipChain,
		"promote children to parent":         testSkipPromote,
		"root node":                          testSkipRoot,
		"no children bridges prev to next":   testSkipBridge,
		"head without children hands parent": testSkipHeadWithoutChildren,
		"child chains link their tails":      testSkipChildChains,
	} {
		t.Run(scenario, fn)
	}
}

func testSkipChain(t *testing.T) {
	f := newFixture("previous", "current", "next", "c1", "c2")
	f.vertices["current"].SkipType = SKIP_NODE
	f.g.RootNodeIds = f.ids("previous")
	f.chain("previous", "current")
	f.chain("current", "next")
	f.child("current", "c1")
	f.child("current", "c2")

	SkipperFor(SKIP_NODE).Skip(f.g, f.vertices["current"])

	f.requireRemoved(t, "current")
	f.requireVertices(t, "previous", "c1", "c2", "next")
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("previous").NextIds)
	require.Empty(t, f.edges("previous").Edges)
	for _, c := range []string{"c1", "c2"} {
		require.ElementsMatch(t, f.ids("next"), f.edges(c).NextIds)
		require.ElementsMatch(t, f.ids("previous"), f.edges(c).PrevIds)
		require.Empty(t, f.edges(c).ParentId)
		require.Empty(t, f.edges(c).Edges)
	}
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("next").PrevIds)
	require.Empty(t, f.edges("next").NextIds)
	require.Equal(t, f.ids("previous"), f.g.RootNodeIds)
}

func testSkipPromote(t *testing.T) {
	f := newFixture("parent", "current", "next", "c1", "c2")
	f.g.RootNodeIds = f.ids("parent")
	f.child("parent", "current")
	f.chain("current", "next")
	f.child("current", "c1")
	f.child("current", "c2")

	SkipNodeSkipper{}.Skip(f.g, f.vertices["current"])

	f.requireRemoved(t, "current")
	f.requireVertices(t, "parent", "c1", "c2", "next")
	require.Empty(t, f.edges("parent").NextIds)
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("parent").Edges)
	for _, c := range []string{"c1", "c2"} {
		require.Equal(t, f.id("parent"), f.edges(c).ParentId)
		require.Empty(t, f.edges(c).PrevIds)
		require.ElementsMatch(t, f.ids("next"), f.edges(c).NextIds)
	}
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("next").PrevIds)
}

func testSkipRoot(t *testing.T) {
	f := newFixture("current", "next", "c1", "c2")
	f.g.RootNodeIds = f.ids("current")
	f.chain("current", "next")
	f.child("current", "c1")
	f.child("current", "c2")

	SkipNodeSkipper{}.Skip(f.g, f.vertices["current"])

	f.requireRemoved(t, "current")
	require.ElementsMatch(t, f.ids("c1", "c2"), f.g.RootNodeIds)
	for _, c := range []string{"c1", "c2"} {
		require.Empty(t, f.edges(c).ParentId)
		require.Empty(t, f.edges(c).PrevIds)
		require.ElementsMatch(t, f.ids("next"), f.edges(c).NextIds)
	}
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("next").PrevIds)
}

func testSkipBridge(t *testing.T) {
	f := newFixture("a", "b", "c")
	f.g.RootNodeIds = f.ids("a")
	f.chain("a", "b")
	f.chain("b", "c")

	SkipNodeSkipper{}.Skip(f.g, f.vertices["b"])

	f.requireRemoved(t, "b")
	require.Equal(t, f.ids("c"), f.edges("a").NextIds)
	require.Equal(t, f.ids("a"), f.edges("c").PrevIds)
}

func testSkipHeadWithoutChildren(t *testing.T) {
	f := newFixture("parent", "head", "second")
	f.g.RootNodeIds = f.ids("parent")
	f.child("parent", "head")
	f.chain("head", "second")

	SkipNodeSkipper{}.Skip(f.g, f.vertices["head"])

	f.requireRemoved(t, "head")
	require.Equal(t, f.ids("second"), f.edges("parent").Edges)
	require.Equal(t, f.id("parent"), f.edges("second").ParentId)
	require.Empty(t, f.edges("second").PrevIds)
}

func testSkipChildChains(t *testing.T) {
	f := newFixture("previous", "current", "next", "c1", "c1b", "c2")
	f.g.RootNodeIds = f.ids("previous")
	f.chain("previous", "current")
	f.chain("current", "next")
	f.child("current", "c1")
	f.chain("c1", "c1b")
	f.child("current", "c2")

	SkipNodeSkipper{}.Skip(f.g, f.vertices["current"])

	f.requireRemoved(t, "current")
	require.ElementsMatch(t, f.ids("c1", "c2"), f.edges("previous").NextIds)
	require.Equal(t, f.ids("c1b"), f.edges("c1").NextIds)
	require.ElementsMatch(t, f.ids("next"), f.edges("c1b").NextIds)
	require.ElementsMatch(t, f.ids("next"), f.edges("c2").NextIds)
	require.ElementsMatch(t, f.ids("c1b", "c2"), f.edges("next").PrevIds)
	require.Equal(t, f.ids("c1"), f.edges("c1b").PrevIds)
}

func TestSkipTreeSkipper(t *testing.T) {
	f := newFixture("previous", "current", "next", "c1", "c1b", "grandchild")
	f.g.RootNodeIds = f.ids("previous")
	f.chain("previous", "current")
	f.chain("current", "next")
	f.child("current", "c1")
	f.chain("c1", "c1b")
	f.child("c1", "grandchild")

	SkipperFor(SKIP_TREE).Skip(f.g, f.vertices["current"])

	for _, name := range []string{"current", "c1", "c1b", "grandchild"} {
		f.requireRemoved(t, name)
	}
	f.requireVertices(t, "previous", "next")
	require.Equal(t, f.ids("next"), f.edges("previous").NextIds)
	require.Equal(t, f.ids("previous"), f.edges("next").PrevIds)
}

func TestNoopSkipper(t *testing.T) {
	f := newFixture("a", "b")
	f.g.RootNodeIds = f.ids("a")
	f.chain("a", "b")
	SkipperFor("unknown").Skip(f.g, f.vertices["b"])
	f.requireVertices(t, "a", "b")
	require.Equal(t, NOOP, ToSkipType("whatever"))
	require.Equal(t, SKIP_TREE, ToSkipType("SKIP_TREE"))
}

func TestGenerate(t *testing.T) {
	instances := []*model.StateExecutionInstance{
		{Uuid: "fork", StateName: "F", Status: model.SUCCESS, StartTs: 10, EndTs: 50, CreatedAt: 1},
		{Uuid: "b1", StateName: "b1", Status: model.SUCCESS, StartTs: 12, EndTs: 20, CreatedAt: 2, ParentInstanceId: "fork", NotifyId: "n1"},
		{Uuid: "b2", StateName: "b2", Status: model.SUCCESS, StartTs: 12, EndTs: 21, CreatedAt: 3, ParentInstanceId: "fork", NotifyId: "n2"},
		{Uuid: "b2-next", StateName: "b2next", Status: model.SUCCESS, StartTs: 22, EndTs: 30, CreatedAt: 4, ParentInstanceId: "fork", PrevInstanceId: "b2"},
		{Uuid: "join", StateName: "join", Status: model.FAILED, StartTs: 51, EndTs: 60, CreatedAt: 5, PrevInstanceId: "fork"},
	}
	g := Generate("app", "exec", instances, map[string]SkipType{"F": SKIP_NODE})

	require.Equal(t, []string{"fork"}, g.RootNodeIds)
	require.Equal(t, []string{"b1", "b2"}, g.Edges("fork").Edges)
	require.Equal(t, []string{"join"}, g.Edges("fork").NextIds)
	require.Equal(t, "fork", g.Edges("b1").ParentId)
	require.Empty(t, g.Edges("b2-next").ParentId)
	require.Equal(t, []string{"b2"}, g.Edges("b2-next").PrevIds)
	require.Equal(t, model.FAILED, g.Status)
	require.Equal(t, int64(10), g.StartTs)
	require.Equal(t, int64(60), g.EndTs)

	SkipAll(g)
	_, ok := g.Vertex("fork")
	require.False(t, ok)
	require.False(t, g.References("fork"))
	require.ElementsMatch(t, []string{"b1", "b2"}, g.RootNodeIds)
	require.ElementsMatch(t, []string{"b1", "b2-next"}, g.Edges("join").PrevIds)
	require.Equal(t, []string{"join"}, g.Edges("b2-next").NextIds)
	require.Equal(t, []string{"join"}, g.Edges("b1").NextIds)
}

func TestGenerateRunning(t *testing.T) {
	g := Generate("app", "exec", []*model.StateExecutionInstance{
		{Uuid: "a", StateName: "A", Status: model.SUCCESS, StartTs: 1, EndTs: 2},
		{Uuid: "b", StateName: "B", Status: model.RUNNING, StartTs: 3, PrevInstanceId: "a"},
	}, nil)
	require.Equal(t, model.RUNNING, g.Status)
	require.Zero(t, g.EndTs)

	empty := Generate("app", "exec", nil, nil)
	require.Equal(t, model.NEW, empty.Status)
	require.Empty(t, empty.RootNodeIds)
}
