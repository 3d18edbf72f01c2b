// Package api is the HTTP client for the homepage backend.
//
// Requests carry the bearer token saved at login. Failures come back as
// *Error, which holds the HTTP status (0 for network errors) and the
// decoded error body:
//
//	c := api.New("https://yanachan.example", api.WithCookies(jar), api.WithStorage(st))
//	res, err := c.Login(ctx, api.Credentials{Username: "yana", Password: pw})
//	var apiErr *api.Error
//	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
//	    // wrong password
//	}
//
// When a bus is configured every request emits events.APIRequest followed
// by events.APIResponse or events.APIError, each with an Exchange payload.
// The client never touches application state itself.
package api
