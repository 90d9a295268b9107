package auth

import "errors"

var (
	// ErrTokenMalformed is returned for bearer tokens that cannot be parsed at all.
	ErrTokenMalformed = errors.New("token: malformed")
	// ErrTokenSignatureInvalid covers tokens that parse but were not minted by this service.
	ErrTokenSignatureInvalid = errors.New("token: signature invalid")
	// ErrTokenExpired signals that the embedded expiry has passed.
	ErrTokenExpired = errors.New("token: expired")

	// ErrSessionNotFound indicates that no session matches the presented token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrRotationExpired is returned once the rotation window of a session closed. The session is gone afterwards.
	ErrRotationExpired = errors.New("session: rotation token expired")
	// ErrInvalidSession rejects records missing an owner or a token.
	ErrInvalidSession = errors.New("session: invalid session")
	// ErrRotationTokenInUse guards the store-wide uniqueness of rotation tokens.
	ErrRotationTokenInUse = errors.New("session: rotation token already in use")
	// ErrSubjectUnavailable is returned by a SubjectResolver for owners that may no longer hold sessions.
	ErrSubjectUnavailable = errors.New("session: subject unavailable")
)
