package jobledger

import "github.com/kdgroup/jobledger/id"

// ID is the primary identifier type for all jobledger entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
