// Package bvh builds bounding volume hierarchies over spheres.
//
// A union potential keeps one tree per particle type, built over that type's
// constituents in the particle frame. Leaves carry a bounding sphere so one
// tree can be walked leaf by leaf while the other is queried:
//
//	for _, leaf := range small.Leaves() {
//		c := toOtherFrame(leaf.Center)
//		large.Query(c, leaf.Radius+rcut, func(item int) { ... })
//	}
//
// Queries are conservative: they never miss an item whose sphere lies within
// the query sphere, but may return some that do not.
package bvh
