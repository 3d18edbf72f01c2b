// Package validate checks form input.
//
// Rules run in order against a field's value. A failed Required stops the
// field; other rules are skipped while the value is blank:
//
//	res := validate.Form(values, map[string][]validate.Validator{
//	    "username": {validate.Required(""), validate.Pattern(validate.UsernamePattern, "用户名格式不正确")},
//	    "email":    {validate.Required(""), validate.Email("")},
//	    "confirm":  {validate.Required(""), validate.SameAs("password", "")},
//	})
//	if !res.Valid {
//	    for name, f := range res.Fields { ... f.Errors[0] ... }
//	}
//
// Default messages are Chinese, matching the site.
package validate
