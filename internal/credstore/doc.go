// Package credstore provides tiered persistent storage for secrets such as the Todoist access token.
//
// Two backends with different security and availability tradeoffs:
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, Secret Service)
//   - Settings: the plain JSON settings document, readable by anyone with access to the user's files
//
// TieredStore prefers the keyring and falls back to the settings document when the keyring
// is unavailable, as happens in sandboxed packages without a Secret Service. An absent
// secret is a normal result, never an error.
package credstore
