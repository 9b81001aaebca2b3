package external

import "github.com/stripe/stripe-go/v72/client"

// NewStripeClient returns an initialized Stripe API client for charging
// package purchases and per-visit payments
func NewStripeClient(key string) *client.API {
	sc := &client.API{}
	sc.Init(key, nil)
	return sc
}
