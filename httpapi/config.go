package httpapi

// Config defines HTTP server settings.
type Config struct {
	Addr     string
	BaseURL  string
	BasePath string
}
