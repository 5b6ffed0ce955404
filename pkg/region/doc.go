// Package region implements the zone, region and assignment model that the
// regionalization engine mutates.
//
// # Overview
//
// A [Model] owns three arenas: zones, regions and assignments. Everything
// refers to everything else by arena index, so the classic cyclic object
// graph (zone knows its regions, region knows its zones) becomes plain
// index bookkeeping:
//
//	m := region.NewModel(region.Exclusive)
//	a, _ := m.AddZone(region.Zone{ID: "A", Mass: 10, Coreable: true})
//	b, _ := m.AddZone(region.Zone{ID: "B", Mass: 5})
//	m.Connect(a, b)
//	r, _ := m.SeedRegion(a)
//	m.Tangle(b, r, false)
//	m.Mass(r) // 15
//
// An [Assignment] is a zone-region link with a core flag, a fuzzy degree and
// an exclave flag. [Model.Tangle] registers it on both sides; [Model.Erase]
// removes both sides; [Model.EraseRegion] dissolves a whole region.
//
// # Membership Mode
//
// The [Mode] is fixed at construction. In [Exclusive] mode a zone holds at
// most one assignment; in [Fuzzy] mode it may hold one per region, with
// fractional degrees. Both modes share one [Zone] type.
//
// # Caches
//
// Regions cache their total, core and raw core mass, their articulation
// map and their intraflows. Every assignment change invalidates the
// articulation and intraflow caches and updates the masses incrementally.
// [Model.SetDegree] keeps the mass in step with degree changes.
//
// # Connectivity
//
// [Model.Articulation] answers which fragments of a region would be cut off
// by removing a zone (or, for an outside zone, which exclaves adding it
// would reconnect). [Model.DetectExclaves] flags hinterland assignments
// unreachable from the cores.
//
// # Concurrency
//
// A Model is not safe for concurrent use. The engine runs single-threaded
// and owns the model exclusively for the duration of a run.
package region
