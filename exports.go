package jobledger

import "github.com/kdgroup/jobledger/types"

// Re-export common types for convenience so callers don't have to import types package.

// Money is re-exported from types package.
type Money = types.Money

// Entity is re-exported from types package.
type Entity = types.Entity

// Re-export Money constructors
var (
	USD         = types.USD
	CAD         = types.CAD
	Zero        = types.Zero
	Sum         = types.Sum
	FromDecimal = types.FromDecimal
)

// Re-export Entity constructor
var NewEntity = types.NewEntity
