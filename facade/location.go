package facade

// Location gives access to the application's current location.
type Location interface {
	// Origin returns the scheme, host and port of the application, for
	// example "https://app.example.com".
	Origin() string
}

// StaticLocation is a Location with a fixed origin.
type StaticLocation string

// Origin implements Location.
func (l StaticLocation) Origin() string { return string(l) }

// LocationFunc adapts an ordinary function to a Location.
type LocationFunc func() string

// Origin implements Location.
func (f LocationFunc) Origin() string { return f() }
