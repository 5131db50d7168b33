package domain

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// topN is the length of the leaderboards in GraphStats
const topN = 5

// GraphStats summarizes a graph for display
type GraphStats struct {
	NodeCount          int         `json:"nodeCount"`
	LinkCount          int         `json:"linkCount"`
	TotalAmountVouched string      `json:"totalAmountVouched"`
	TopVouchers        []VouchNode `json:"topVouchers"`
	TopReceivers       []VouchNode `json:"topReceivers"`
}

// ComputeStats derives summary statistics from a graph
func ComputeStats(g GraphData) GraphStats {
	total := decimal.Zero
	for _, n := range g.Nodes {
		total = total.Add(AmountDecimal(n.AmountVouched))
	}

	return GraphStats{
		NodeCount:          len(g.Nodes),
		LinkCount:          len(g.Links),
		TotalAmountVouched: total.StringFixed(2),
		TopVouchers: topNodes(g.Nodes, func(n VouchNode) int {
			return n.VouchesGiven
		}),
		TopReceivers: topNodes(g.Nodes, func(n VouchNode) int {
			return n.VouchesReceived
		}),
	}
}

// Summary renders a one-line human description of the stats
func (s GraphStats) Summary() string {
	return fmt.Sprintf("%s accounts, %s vouches, %s%s vouched",
		humanize.Comma(int64(s.NodeCount)),
		humanize.Comma(int64(s.LinkCount)),
		CurrencyPrefix, s.TotalAmountVouched)
}

func topNodes(nodes []VouchNode, key func(VouchNode) int) []VouchNode {
	sorted := make([]VouchNode, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return key(sorted[i]) > key(sorted[j])
	})
	if len(sorted) > topN {
		sorted = sorted[:topN]
	}
	return sorted
}
