// Package token provides the bearer-secret primitives for claim links.
//
// It is the single source of truth for how a claim-link secret is generated
// and how it is hashed before it reaches storage. The plain secret only ever
// travels inside the emailed URL; the database holds its digest.
//
// Hashing modes:
// - Default dev mode: SHA-256(secret) when no HMAC key is configured.
// - Production mode: HMAC-SHA256(secret, key).
// - Output is always a 64-char hex string.
//
// Environment:
// - MEMBERDESK_TOKEN_HMAC_KEY: when set, enables HMAC mode.
//
// Policy:
//   - If MEMBERDESK_REQUIRE_TOKEN_HMAC=true, callers MUST enforce a minimum key
//     size (>= 32 bytes) and MUST use HMAC (no SHA fallback).
package token
