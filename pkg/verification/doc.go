// Package verification asserts over the request log: how many times a
// request was received, and whether requests arrived in a given order.
//
// Verification never modifies the log. It works on a point-in-time
// snapshot and evaluates targets with the same matcher used for dispatch,
// so a matcher that would have selected an expectation also counts the
// request here.
package verification
