// Package jwt verifies and issues the HMAC-signed bearer tokens that the
// gateway accepts. Tokens carry the principal in private claims whose names
// are configurable; expiry is mandatory.
package jwt
