package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// RoleAdmin is the role claim value that grants elevated operations.
const RoleAdmin = "admin"
