package clientconfig

// Default configuration values.
const (
	DefaultInterface = "eth0"
	DefaultLogLevel  = "info"
	DefaultMTU       = 1500
)
