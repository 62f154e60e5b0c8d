// Package auth owns the login lifecycle: the shared authentication State and the
// OAuth Flow that changes it.
//
// A successful login or a logout is persisted through the credential store first and
// only then published as an events.Authentication, so every subscriber sees a store
// that already reflects the new state.
package auth
