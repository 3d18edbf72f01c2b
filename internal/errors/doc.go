// Package errors provides coded, actionable errors for the homepage CLI and
// server setup.
//
// Each code maps to a registered template with a category, a short message
// and a longer detail. Call sites add a suggestion or wrap a cause:
//
//	err := errors.New("E103").
//	    WithDetail(`Unknown storage driver "etcd"`).
//	    WithSuggestion("Use one of memory, sqlite, postgres, redis, s3")
//
//	errors.PrintError(err)
//	// ERROR E103: Unknown storage driver
//	//
//	//   Unknown storage driver "etcd"
//	//
//	//   Hint: Use one of memory, sqlite, postgres, redis, s3
//
// Errors unwrap to their cause, so errors.Is and errors.As from the standard
// library keep working.
package errors
