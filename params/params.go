package params

import "time"

const (
	ServerBodyLimit              = 1048576 // 1 MiB
	ServerIdleTimeout            = 30 * time.Second
	ServerReadTimeout            = 10 * time.Second
	ServerWriteTimeout           = 15 * time.Second
	AuthorizationKeyPrefix       = "oauth:pending:"
	AuthorizationStateExpiration = 10 * time.Minute // pending authorization attempt lifetime, state is single use
	AuthorizationNonceLength     = 32               // length of the server-side state nonce
	ProviderRequestTimeout       = 10 * time.Second // upper bound for every token, revoke and calendar call
	TokenExpiryLeeway            = 60 * time.Second // access tokens this close to expiry are refreshed first
	TokenExpiresSoonWindow       = 5 * time.Minute  // status reports expiresSoon inside this window
	HealthCheckServerAddr        = ":3001" // health check server address
	APIVersion                   = "1.0"
)
