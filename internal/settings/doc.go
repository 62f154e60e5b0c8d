// Package settings persists named application settings in a single JSON document.
//
// The document is the plain persisted tier of credential storage and the home of
// non-secret preferences such as the autostart flag:
//   - Writes replace the whole document atomically (temp file + rename, 0600)
//   - Writers are serialized in-process by a mutex and across processes by a lock file
//   - Values that no longer decode into the requested type read as absent
//
// Watch reports modifications made by other processes or by hand.
package settings
