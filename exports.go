package policymaker

import (
	"github.com/xraph/policymaker/policy"
	"github.com/xraph/policymaker/premium"
	"github.com/xraph/policymaker/types"
)

// Re-export common types for convenience so users don't have to import the
// model packages.

// Money is re-exported from types package.
type Money = types.Money

// Policy is re-exported from policy package.
type Policy = policy.Policy

// Terms is re-exported from policy package.
type Terms = policy.Terms

// Payment is re-exported from premium package.
type Payment = premium.Payment

// Receipt is re-exported from premium package.
type Receipt = premium.Receipt

// Re-export Money constructors
var (
	USD  = types.USD
	EUR  = types.EUR
	Zero = types.Zero
)

// MonthLength is the fixed accrual month.
const MonthLength = premium.MonthLength
