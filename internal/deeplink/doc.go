// Package deeplink routes capturist:// URLs delivered by the OS, or forwarded by a
// second process, to the component owning their host.
package deeplink
