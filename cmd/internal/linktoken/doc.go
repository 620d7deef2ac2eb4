// Package linktoken implements the single-use claim-link token lifecycle.
//
// A token grants one member permission to perform one self-service action
// (document upload or declaration signature) exactly once, within seven days
// of issuance. Issuing a new token for the same member and purpose supersedes
// the previous one.
//
// The plain secret is returned once by Issue and embedded in the claim URL;
// storage only ever sees its hash (see cmd/security/token).
//
// Lifecycle:
//   - Issue: supersede live tokens for (member, purpose), then insert a new one.
//   - Validate: read-only classification (NotFound, AlreadyUsed, Expired, Revoked, Valid).
//   - MarkUsedIfLive: conditional consumption, performed by the claim flow.
//   - Expiry is passive; nothing is written when a token ages out.
package linktoken
