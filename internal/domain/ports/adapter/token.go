package adapter

import "context"

// SessionTokenIssuer mints the session credential handed to a display device
// once its activation has been consumed.
type SessionTokenIssuer interface {
	Issue(ctx context.Context, userID, deviceIdentifier string) (string, error)
}
