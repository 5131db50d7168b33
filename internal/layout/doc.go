// Package layout assigns 2D positions to a vouch graph and renders it.
//
// An Engine owns a private arena of Bodies copied from the graph it is given;
// the caller's GraphData is never mutated. Links are bound to Body pointers
// once, when the graph is loaded, and links whose endpoints are missing are
// dropped.
//
// Positions come from a velocity-decay force simulation with four
// forces: link springs, many-body repulsion, centering and collision. Small
// graphs settle live on a ticker and report every tick; large graphs are
// fast-forwarded synchronously and frozen.
//
// Pointer gestures are interpreted in screen coordinates. A press that moves
// at least DragThreshold pixels drags and pins the node under it; otherwise
// the release is a click that selects a node or clears the selection.
package layout
