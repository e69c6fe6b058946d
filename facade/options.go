package facade

import (
	"github.com/hashicorp/go-hclog"
	"github.com/yeiniel/authfacade/authclient"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// serviceOptions is the set of available options for Service functions
type serviceOptions struct {
	withFactory       Factory
	withLogger        hclog.Logger
	withClientOptions []authclient.Option
}

// serviceDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func serviceDefaults() serviceOptions {
	return serviceOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getServiceOpts gets the service defaults and applies the opt overrides
// passed in
func getServiceOpts(opt ...Option) serviceOptions {
	opts := serviceDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithFactory provides the Factory used to build the client.  It defaults to
// DefaultFactory.
//
// Valid for: Service
func WithFactory(f Factory) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok {
			o.withFactory = f
		}
	}
}

// WithLogger provides an optional logger.
//
// Valid for: Service
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithClientOptions provides options for the client built by the default
// factory.  They are ignored when WithFactory is used.
//
// Valid for: Service
func WithClientOptions(opt ...authclient.Option) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok {
			o.withClientOptions = append(o.withClientOptions, opt...)
		}
	}
}
