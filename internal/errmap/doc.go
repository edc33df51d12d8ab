// Package errmap translates domain errors into transport representations:
// HTTP status and code for the REST API, and a reply category with
// user-facing text for chat transports.
package errmap
