// Package todoist implements the client side of Todoist's OAuth2 authorization-code grant.
//
// Todoist's token endpoint documents exactly three form fields (client_id, client_secret
// and code) and scopes are comma-separated, so the golang.org/x/oauth2 defaults are adjusted:
//   - Scopes are joined with commas into a single scope parameter
//   - The token request is trimmed to the documented fields before it is sent
//
// # Usage
//
//	client := todoist.NewClient(clientID, clientSecret, todoist.DefaultScopes)
//	state, _ := todoist.NewState()
//	url := client.AuthorizationURL(state)
//	// ... user approves in the browser, callback carries code and state ...
//	token, err := client.Exchange(ctx, code)
package todoist
