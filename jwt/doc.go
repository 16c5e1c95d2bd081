// Package jwt mints and validates the signed, self-contained access tokens
// issued by the engine.
//
// Tokens carry [AccessClaims]: subject (account id), issuing session id,
// optional scope list, and the registered time claims. Validation checks
// signature integrity, expiry with a configurable clock-skew leeway, and
// claim well-formedness. The algorithm is fixed at process startup: Ed25519
// by default, HS256 for deployments sharing a symmetric secret.
package jwt
