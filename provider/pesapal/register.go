package pesapal

import "github.com/mstgnz/pesapay/provider"

// Register Pesapal provider with the gateway registry
func init() {
	provider.Register("pesapal", NewProvider)
}
