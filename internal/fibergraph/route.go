package fibergraph

import (
	"container/heap"
	"errors"

	"fibermap/core-go/internal/geo"
)

var (
	ErrNoPath      = errors.New("no path between nodes")
	ErrUnknownNode = errors.New("node not in graph")
)

// Path is a routed cable path, start and end inclusive.
type Path struct {
	Nodes     []geo.NodeKey
	Points    []geo.Point
	DistanceM float64
}

// ShortestPath runs Dijkstra from one node to another.
func (g *Graph) ShortestPath(from, to geo.NodeKey) (Path, error) {
	if !g.HasNode(from) || !g.HasNode(to) {
		return Path{}, ErrUnknownNode
	}

	dist := map[geo.NodeKey]float64{from: 0}
	prev := make(map[geo.NodeKey]geo.NodeKey)
	visited := make(map[geo.NodeKey]bool)

	pq := &priorityQueue{}
	heap.Push(pq, &pqItem{node: from, priority: 0})

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*pqItem)
		current := item.node
		if visited[current] {
			continue
		}
		visited[current] = true

		if current == to {
			return g.reconstructPath(prev, from, to, dist[to]), nil
		}

		for _, e := range g.adj[current] {
			if visited[e.To] {
				continue
			}
			tentative := dist[current] + e.WeightM
			if old, ok := dist[e.To]; !ok || tentative < old {
				dist[e.To] = tentative
				prev[e.To] = current
				heap.Push(pq, &pqItem{node: e.To, priority: tentative})
			}
		}
	}

	return Path{}, ErrNoPath
}

func (g *Graph) reconstructPath(prev map[geo.NodeKey]geo.NodeKey, from, to geo.NodeKey, total float64) Path {
	nodes := []geo.NodeKey{to}
	for cur := to; cur != from; {
		cur = prev[cur]
		nodes = append(nodes, cur)
	}
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}

	points := make([]geo.Point, 0, len(nodes))
	for _, k := range nodes {
		points = append(points, g.points[k])
	}
	return Path{Nodes: nodes, Points: points, DistanceM: total}
}

type pqItem struct {
	node     geo.NodeKey
	priority float64
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int           { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }

func (pq *priorityQueue) Push(x any) {
	*pq = append(*pq, x.(*pqItem))
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
