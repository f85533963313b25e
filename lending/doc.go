// Package lending moves a book copy between "available" and "on loan".
//
// Manager owns the borrow, extend and return operations. Every check runs
// inside one unit of work supplied by a TxRunner; a failed precondition
// aborts the unit with a typed error and nothing is written.
package lending
