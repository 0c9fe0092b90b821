package common

// AuthorizationHeaderName is the HTTP header used to carry the bearer
// token on outbound requests to the chat API.
const AuthorizationHeaderName = "Authorization"
