// Package router declares the gateway's route table: for each public
// method and path, which downstream service answers it, which rate-limit
// class applies, whether a principal is required and with which roles, and
// how the inbound request is rewritten into the downstream call.
//
// Path matching itself is done by the HTTP engine; this package only
// describes routes and validates the table.
package router
