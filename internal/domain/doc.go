// Package domain defines the core types of the vouch graph.
//
// An account vouches for another account with a monetary amount. Every
// distinct account observed in a vouching event becomes a VouchNode and every
// vouching event becomes a VouchLink. GraphData holds both sequences in
// discovery order.
//
// # Amounts
//
// Amounts travel as integer strings in minor units (1e6 per dollar). They are
// never stored as floating point; FormatAmount and the classification rules
// use exact decimal arithmetic.
//
// # Ownership
//
// GraphData values are snapshots. Nothing in this package mutates a graph in
// place once it has been built: Clone hands out an independent copy and the
// derived views (filtering, stats, connections) always build new slices.
// Layout positions are not part of a VouchNode; the layout engine owns its own
// bodies and reports pins back as NodePosition values.
package domain
