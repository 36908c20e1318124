// Package members resolves what members owe for their group memberships.
//
// A member can belong to several groups. Each membership is priced at its own
// membership_price, or at the group's default price when none is set. The monthly
// membership amount of a member is the sum over memberships active in the billing month,
// rounded half-up to cents once after summation.
package members
