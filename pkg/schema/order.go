package schema

import (
	"strings"

	"github.com/dsiflow/dsi/pkg/abstraction"
	dsierr "github.com/dsiflow/dsi/pkg/errors"
)

// Order returns tables so that every referenced table precedes its
// referrers. Tables not mentioned by any relation come first, in their
// given order; related tables follow in dependency order with ties broken
// by the given order. Relations naming tables outside the list (already
// stored) impose no ordering. A reference cycle is a ValueError.
func Order(tables []string, relations *abstraction.Relations) ([]string, error) {
	pos := make(map[string]int, len(tables))
	for i, t := range tables {
		pos[t] = i
	}
	mentioned := make(map[string]bool)
	for _, t := range relations.Tables() {
		mentioned[t] = true
	}

	var out []string
	var related []string
	for _, t := range tables {
		if mentioned[t] {
			related = append(related, t)
		} else {
			out = append(out, t)
		}
	}

	indegree := make(map[string]int, len(related))
	dependants := make(map[string][]string)
	seenEdge := make(map[[2]string]bool)
	for _, t := range related {
		indegree[t] = 0
	}
	for _, r := range relations.Entries() {
		parent, child := r.PrimaryKey.Table, r.ForeignKey.Table
		if r.ForeignKey.IsZero() || parent == child {
			continue
		}
		if _, ok := pos[parent]; !ok {
			continue
		}
		if _, ok := pos[child]; !ok {
			continue
		}
		edge := [2]string{parent, child}
		if seenEdge[edge] {
			continue
		}
		seenEdge[edge] = true
		dependants[parent] = append(dependants[parent], child)
		indegree[child]++
	}

	done := make(map[string]bool, len(related))
	for len(done) < len(related) {
		next := ""
		for _, t := range related {
			if !done[t] && indegree[t] == 0 {
				next = t
				break
			}
		}
		if next == "" {
			var cycle []string
			for _, t := range related {
				if !done[t] {
					cycle = append(cycle, t)
				}
			}
			return nil, dsierr.Newf(dsierr.KindValue, "relations form a cycle between tables: %s",
				strings.Join(cycle, ", "))
		}
		done[next] = true
		out = append(out, next)
		for _, c := range dependants[next] {
			indegree[c]--
		}
	}
	return out, nil
}
