package authclient

import (
	"time"

	"github.com/hashicorp/go-hclog"
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

// clientOptions is the set of available options for Client functions
type clientOptions struct {
	withLogger           hclog.Logger
	withNavigator        Navigator
	withCache            Cache
	withTransactionStore TransactionStore
	withNowFunc          func() time.Time
}

// clientDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func clientDefaults() clientOptions {
	return clientOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

// getClientOpts gets the client defaults and applies the opt overrides passed
// in
func getClientOpts(opt ...Option) clientOptions {
	opts := clientDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withNavigator == nil {
		opts.withNavigator = logNavigator(opts.withLogger)
	}
	if opts.withCache == nil {
		opts.withCache = NewMemoryCache()
	}
	if opts.withTransactionStore == nil {
		opts.withTransactionStore = NewMemoryTransactionStore()
	}
	return opts
}

// WithLogger provides an optional logger.
//
// Valid for: Client
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && l != nil {
			o.withLogger = l
		}
	}
}

// WithNavigator provides the default Navigator used when the context doesn't
// carry one.
//
// Valid for: Client
func WithNavigator(n Navigator) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withNavigator = n
		}
	}
}

// WithCache provides an optional session Cache.
//
// Valid for: Client
func WithCache(c Cache) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withCache = c
		}
	}
}

// WithTransactionStore provides an optional TransactionStore.
//
// Valid for: Client
func WithTransactionStore(s TransactionStore) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok {
			o.withTransactionStore = s
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is.
//
// Valid for: Client
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*clientOptions); ok && now != nil {
			o.withNowFunc = now
		}
	}
}
