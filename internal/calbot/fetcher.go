package calbot

import "context"

// CredentialKind selects the variant of a Credential.
type CredentialKind string

const (
	CredentialNone   CredentialKind = "none"
	CredentialBasic  CredentialKind = "basic"
	CredentialBearer CredentialKind = "bearer"
)

// Credential carries the authentication material for one feed fetch.
// Kind determines which fields are set: basic uses User/Password, bearer
// uses Token, none uses neither. Values here are plaintext; sealing and
// unsealing happen at the storage boundary.
type Credential struct {
	Kind     CredentialKind
	User     string
	Password string
	Token    string
}

// NoCredential returns the Credential variant for public feeds.
func NoCredential() Credential {
	return Credential{Kind: CredentialNone}
}

// FeedRequest identifies one feed to retrieve.
type FeedRequest struct {
	URL        string
	Credential Credential
}

// FeedFetcher retrieves raw feed bodies. Implementations map failures onto
// the fetch sentinel errors (ErrUnauthorized, ErrNotFound, ErrTimeout,
// ErrTransport) so the sync layer can branch on them.
type FeedFetcher interface {
	Fetch(ctx context.Context, req *FeedRequest) ([]byte, error)
}
