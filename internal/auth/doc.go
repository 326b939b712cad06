// Package auth resolves presented credentials to participant identities.
//
// The relay treats identity resolution as an external concern: whoever
// issues credentials decides what a participant ID is. This package
// supplies the Resolver interface the transport and API layers consume,
// plus a JWT implementation (HS256, participant ID in the "sub" claim)
// matching the token format the surrounding account system issues.
//
// Resolution is the only authentication step the relay performs; there is
// no signup, password handling, or session storage here.
package auth
