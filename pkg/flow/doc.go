// Package flow provides sparse interaction vectors used for all flow
// arithmetic in the regionalization engine.
//
// # Overview
//
// A [Vector] maps a destination [Unit] (a zone or a region, addressed by its
// arena index) to an accumulated strength. Flows whose destination could not
// be matched to any known unit are kept in a scalar raw residual, which is
// part of [Vector.Sum] but never of any per-target query.
//
//	out := flow.New()
//	out.AddTo(flow.ZoneUnit(3), 120)
//	out.AddRaw(5)
//	out.Sum() // 125
//
// # Reducing to Regions
//
// Membership formulas look at flows grouped by region. [Vector.ToCore] and
// [Vector.ToRegional] substitute every zone target with the region owning it
// (as a core zone, or in any role), summing collisions. Owners are supplied
// through the [Owner] interface so this package stays independent of the
// zone/region model.
//
// # Significance
//
// [Vector.Significant] selects the leading flows that stand out from the
// rest by fitting a step function to the normalized, descending flow
// profile.
//
// # Multi-valued Flows
//
// [Multi] stores a fixed-length slice of strengths per target, with the
// length chosen explicitly at construction. [Multi.Component] projects it to
// a scalar [Vector].
//
// # Division by Zero
//
// Every ratio in this package and its consumers goes through [Ratio], which
// returns 0 for a zero denominator.
package flow
