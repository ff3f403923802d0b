// Package outcome defines the tagged result returned by every heykeploy
// operation, the error taxonomy behind failures, and the status reporter
// callback used to surface progress without coupling the core to a UI.
//
// Components wrap their errors with *Error at the point where the cause is
// known (network, archive, permission, spawn, ...). The component boundary
// then converts any error into a Failure, so callers only ever see a Result.
package outcome
