package domain

// UserID is the canonical identifier of a user. Identities are compared
// with == on this type and never through any other representation.
type UserID string

// Identity is the authenticated caller of one request. It is derived only
// from a verified credential and is never persisted.
type Identity struct {
	UserID UserID
}
