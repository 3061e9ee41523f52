// Package capability defines the feature vocabulary used to describe planning
// problems and the engines able to handle them.
//
// A problem's Kind is the minimal set of features an engine must support to
// accept it. Engines declare, per operation mode, the maximal Kind they accept;
// an engine can handle a problem when the problem's Kind is a subset of the
// declared one.
//
//	required := capability.NewKind(capability.ActionBased, capability.NumericFluents)
//	supported := capability.NewKind(capability.ActionBased, capability.NumericFluents, capability.FlatTyping)
//	required.IsSubsetOf(supported) // true
package capability
