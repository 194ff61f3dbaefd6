// Package auth provides user accounts and token handling for the hub's
// control plane.
//
// Users register with an email and password (Argon2id, PHC encoded) and log
// in to receive a short-lived HS256 access token and a longer-lived refresh
// token. The two token types are signed with different secrets. Every
// token names the agent it was issued to (the hub's own apps, or the
// smart-home fulfillment integration) and is rejected for any other.
//
// Access tokens are verified by signature alone. Refresh tokens must also
// be present and unrevoked in the TokenStore, which is what makes logout
// stick.
package auth
