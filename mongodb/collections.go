// Package mongodb implements the entity stores and the client/scope lookups
// on MongoDB. The at-most-once redemption guarantee rests on Consume being a
// single conditional FindOneAndUpdate; sweeps use the injected Clock, not
// the database server's time.
package mongodb

// Collection names used by the stores.
const (
	AccessTokensCollection  = "access_tokens"
	RefreshTokensCollection = "refresh_tokens"
	AuthCodesCollection     = "auth_codes"
	ClientsCollection       = "clients"
	ScopesCollection        = "scopes"
)
