package settings

// Key addresses a single value in the settings document and in the secure store.
type Key string

const (
	// KeyTodoistToken holds the Todoist access token.
	KeyTodoistToken Key = "TODOIST_TOKEN"
	// KeyAutostart holds whether the application launches at login.
	KeyAutostart Key = "AUTOSTART"
)

func (k Key) String() string {
	return string(k)
}

// Secret reports whether the value is a credential, which is only read from an
// owner-only document.
func (k Key) Secret() bool {
	return k == KeyTodoistToken
}
