package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// Pull page bounds.
const (
	DefaultPullLimit = 100
	MaxPullLimit     = 500
)

// MaxPushBatch caps the number of items accepted in one push request.
const MaxPushBatch = 500
