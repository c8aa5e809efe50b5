// Package tree compiles a flat rule list into a decision tree keyed on
// cheap-to-evaluate context features first, and descends that tree for
// a given context snapshot.
package tree

import (
	"sort"

	"github.com/ctxrules/engine/internal/rules"
)

// Branch is one value → child-index edge of an internal node.
type Branch struct {
	Value    string
	ChildIdx int
}

// Node is either an internal split node or a leaf. SplitKey == "" marks
// a leaf.
type Node struct {
	SplitKey     string
	Branches     []Branch
	DefaultChild int // -1 if absent
	RuleIndices  []int
}

// Tree is the compiled decision tree. Nodes are stored flat; child
// references are indices, root is always index 0.
type Tree struct {
	Nodes []Node
}

// Empty reports whether the tree has no compiled rules.
func (t *Tree) Empty() bool {
	return t == nil || len(t.Nodes) == 0
}

// featureCost ranks context keys by evaluation cost — cheaper features
// are preferred as split candidates. Unknown keys default to cost 2
// (same tier as motion/step-count sensors), matching decision_tree.cpp.
func featureCost(key string) int {
	switch key {
	case "timeOfDay", "dayOfWeek", "isWeekend", "hour", "minute":
		return 0
	case "batteryLevel", "isCharging", "networkType":
		return 1
	case "motionState", "stepCount":
		return 2
	case "geofence", "location", "latitude", "longitude":
		return 3
	default:
		return 2
	}
}

// maxDepth bounds how many distinct keys may be used along one descent
// path before the compiler is forced to emit a leaf.
const maxDepth = 5

// buildTask is one pending node to expand, carried on an explicit stack
// so compilation never recurses (mirrors the teacher's compiler, which
// defers jump-target resolution onto a flat worklist rather than
// recursing through the AST).
type buildTask struct {
	indices  []int
	usedKeys map[string]bool
	nodeIdx  int
}

// Compile builds a decision tree from the enabled subset of rs.
// Disabled rules never reach a leaf. Only `eq` conditions are ever used
// as split candidates — rules relying solely on other operators fall
// through to the default branch at every internal node they pass
// through, and are evaluated via soft matching once a leaf is reached.
func Compile(rs []*rules.Rule) *Tree {
	var enabled []int
	for i, r := range rs {
		if r.Enabled {
			enabled = append(enabled, i)
		}
	}
	if len(enabled) == 0 {
		return &Tree{}
	}

	t := &Tree{Nodes: make([]Node, 1)} // reserve root at index 0

	stack := []buildTask{{indices: enabled, usedKeys: map[string]bool{}, nodeIdx: 0}}

	for len(stack) > 0 {
		task := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		splitKey := pickSplitKey(rs, task.indices, task.usedKeys)

		if splitKey == "" || len(task.indices) <= 2 || len(task.usedKeys) >= maxDepth {
			t.Nodes[task.nodeIdx] = Node{DefaultChild: -1, RuleIndices: task.indices}
			continue
		}

		groups, noCondition := partition(rs, task.indices, splitKey)

		childUsedKeys := make(map[string]bool, len(task.usedKeys)+1)
		for k := range task.usedKeys {
			childUsedKeys[k] = true
		}
		childUsedKeys[splitKey] = true

		node := Node{SplitKey: splitKey, DefaultChild: -1}

		// Stable iteration order over the value groups for reproducible
		// tree shape across recompiles with identical rule sets.
		values := make([]string, 0, len(groups))
		for v := range groups {
			values = append(values, v)
		}
		sort.Strings(values)

		for _, value := range values {
			ruleIdxs := append(append([]int{}, groups[value]...), noCondition...)
			childIdx := len(t.Nodes)
			t.Nodes = append(t.Nodes, Node{})
			node.Branches = append(node.Branches, Branch{Value: value, ChildIdx: childIdx})
			stack = append(stack, buildTask{indices: ruleIdxs, usedKeys: childUsedKeys, nodeIdx: childIdx})
		}

		if len(noCondition) > 0 {
			defaultIdx := len(t.Nodes)
			t.Nodes = append(t.Nodes, Node{})
			node.DefaultChild = defaultIdx
			stack = append(stack, buildTask{indices: noCondition, usedKeys: childUsedKeys, nodeIdx: defaultIdx})
		}

		t.Nodes[task.nodeIdx] = node
	}

	return t
}

// pickSplitKey chooses the key maximizing coverage/(1+cost) among keys
// used in an `eq` condition by at least one candidate rule and not yet
// used along this descent path.
func pickSplitKey(rs []*rules.Rule, indices []int, usedKeys map[string]bool) string {
	counts := map[string]int{}
	order := []string{} // first-seen order, for deterministic tie-break
	for _, idx := range indices {
		for _, cond := range rs[idx].Conditions {
			if cond.Op != rules.OpEqual || usedKeys[cond.Key] {
				continue
			}
			if _, seen := counts[cond.Key]; !seen {
				order = append(order, cond.Key)
			}
			counts[cond.Key]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	bestKey := ""
	bestScore := -1.0
	for _, key := range order {
		score := float64(counts[key]) / (1.0 + float64(featureCost(key)))
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	return bestKey
}

// partition splits indices into eq-value groups on splitKey plus a
// "no condition on this key" group that must be appended to every branch.
func partition(rs []*rules.Rule, indices []int, splitKey string) (map[string][]int, []int) {
	groups := map[string][]int{}
	var noCondition []int

	for _, idx := range indices {
		found := false
		for _, cond := range rs[idx].Conditions {
			if cond.Key == splitKey && cond.Op == rules.OpEqual {
				groups[cond.Value] = append(groups[cond.Value], idx)
				found = true
				break
			}
		}
		if !found {
			noCondition = append(noCondition, idx)
		}
	}
	return groups, noCondition
}

// Descend follows exactly one path from the root for the given context,
// returning the leaf's candidate rule indices (nil if no path exists,
// e.g. an internal node whose value has no matching branch and no
// default branch).
func (t *Tree) Descend(ctx rules.ContextMap) []int {
	if t.Empty() {
		return nil
	}
	idx := 0
	for {
		node := t.Nodes[idx]
		if node.SplitKey == "" {
			return node.RuleIndices
		}
		value, present := ctx[node.SplitKey]
		nextIdx := -1
		if present {
			for _, br := range node.Branches {
				if br.Value == value {
					nextIdx = br.ChildIdx
					break
				}
			}
		}
		if nextIdx < 0 {
			nextIdx = node.DefaultChild
		}
		if nextIdx < 0 {
			return nil
		}
		idx = nextIdx
	}
}
