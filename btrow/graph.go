package btrow

import (
	"github.com/sirupsen/logrus"
)

// Order arranges reduced rows into causally-ordered groups. Rows are the
// nodes; a directed edge runs from parent to child when a row's
// ParentRowID names another row in the same scope within this batch. The
// output is one group per connected component (undirected closure), each
// topologically sorted so every row follows its in-component ancestors.
// Rows whose parent is not in the batch are roots: the parent may already
// exist server-side.
//
// The graph is adjacency lists over row indices, not linked nodes, so
// cycle detection is a plain bookkeeping walk. A cycle is a caller bug; the
// offending component is logged and dropped, and the rest of the batch is
// unaffected.
func Order(rows []MergedRow, log logrus.FieldLogger) [][]MergedRow {
	if log == nil {
		log = logrus.StandardLogger()
	}
	index := make(map[rowKey]int, len(rows))
	for i := range rows {
		index[rowKey{scope: rows[i].Scope, rowID: rows[i].RowID}] = i
	}
	children := make([][]int, len(rows))
	indegree := make([]int, len(rows))
	for i := range rows {
		if rows[i].ParentRowID == "" {
			continue
		}
		parent, ok := index[rowKey{scope: rows[i].Scope, rowID: rows[i].ParentRowID}]
		if !ok {
			continue
		}
		children[parent] = append(children[parent], i)
		indegree[i]++
	}

	groups := make([][]MergedRow, 0, len(rows))
	component := make([]int, len(rows))
	for i := range component {
		component[i] = -1
	}
	next := 0
	for start := range rows {
		if component[start] != -1 {
			continue
		}
		members := collectComponent(start, next, component, children, rows, index)
		next++
		sorted, ok := topoSort(members, children, indegree)
		if !ok {
			log.WithFields(logrus.Fields{
				"rows":  len(members),
				"rowID": rows[start].RowID,
			}).Warn("dropping rows with cyclic parent references")
			continue
		}
		group := make([]MergedRow, len(sorted))
		for i, idx := range sorted {
			group[i] = rows[idx]
		}
		groups = append(groups, group)
	}
	return groups
}

// collectComponent walks parent and child edges both ways from start,
// marking membership and returning the member indices in ascending order.
func collectComponent(start, id int, component []int, children [][]int, rows []MergedRow, index map[rowKey]int) []int {
	stack := []int{start}
	component[start] = id
	var members []int
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		members = append(members, cur)
		neighbors := children[cur]
		if rows[cur].ParentRowID != "" {
			if parent, ok := index[rowKey{scope: rows[cur].Scope, rowID: rows[cur].ParentRowID}]; ok {
				neighbors = append(neighbors[:len(neighbors):len(neighbors)], parent)
			}
		}
		for _, n := range neighbors {
			if component[n] == -1 {
				component[n] = id
				stack = append(stack, n)
			}
		}
	}
	// small components: insertion sort keeps first-appearance order stable
	for i := 1; i < len(members); i++ {
		for j := i; j > 0 && members[j-1] > members[j]; j-- {
			members[j-1], members[j] = members[j], members[j-1]
		}
	}
	return members
}

// topoSort orders one component's members parent-first. Members arrive in
// ascending input order and ties break the same way, so output order is
// deterministic. Returns false when no progress can be made, which means
// the component contains a cycle.
func topoSort(members []int, children [][]int, indegree []int) ([]int, bool) {
	remaining := make(map[int]int, len(members))
	for _, m := range members {
		remaining[m] = indegree[m]
	}
	sorted := make([]int, 0, len(members))
	done := make(map[int]bool, len(members))
	for len(sorted) < len(members) {
		progressed := false
		for _, m := range members {
			if done[m] || remaining[m] != 0 {
				continue
			}
			done[m] = true
			sorted = append(sorted, m)
			for _, child := range children[m] {
				remaining[child]--
			}
			progressed = true
		}
		if !progressed {
			return nil, false
		}
	}
	return sorted, true
}
