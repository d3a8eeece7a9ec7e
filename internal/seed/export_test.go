package seed

// Exposes unexported defaults to the external seed_test package.
const (
	DefaultAdminEmail    = defaultAdminEmail
	DefaultAdminPassword = defaultAdminPassword
)
