// Package search derives connectivity-preserving subgraphs from a search term.
package search

import (
	"strings"

	"vouchgraph/internal/domain"
)

// Filter returns the nodes matching term plus their direct neighbours, and
// every link with at least one matching endpoint. Nodes and links keep their
// relative order from g. A blank term returns g unchanged.
func Filter(g domain.GraphData, term string) domain.GraphData {
	needle := normalizeTerm(term)
	if needle == "" {
		return g
	}

	matched := make(map[string]struct{})
	for _, n := range g.Nodes {
		if matches(n, needle) {
			matched[n.ID] = struct{}{}
		}
	}

	keep := make(map[string]struct{}, len(matched))
	for id := range matched {
		keep[id] = struct{}{}
	}

	links := make([]domain.VouchLink, 0)
	for _, l := range g.Links {
		_, src := matched[l.Source.ID]
		_, dst := matched[l.Target.ID]
		if !src && !dst {
			continue
		}
		links = append(links, l)
		keep[l.Source.ID] = struct{}{}
		keep[l.Target.ID] = struct{}{}
	}

	nodes := make([]domain.VouchNode, 0, len(keep))
	for _, n := range g.Nodes {
		if _, ok := keep[n.ID]; ok {
			nodes = append(nodes, n)
		}
	}

	return domain.GraphData{Nodes: nodes, Links: links}
}

// Matches reports whether the node's name or address contains term,
// ignoring case. A blank term matches nothing.
func Matches(n domain.VouchNode, term string) bool {
	needle := normalizeTerm(term)
	if needle == "" {
		return false
	}
	return matches(n, needle)
}

func matches(n domain.VouchNode, needle string) bool {
	return strings.Contains(strings.ToLower(n.Name), needle) ||
		strings.Contains(strings.ToLower(n.Address), needle)
}

func normalizeTerm(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
