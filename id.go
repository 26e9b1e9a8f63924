package policymaker

import "github.com/xraph/policymaker/id"

// ID is the TypeID used for receipts and audit events. Policies use
// sequential integers instead.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
