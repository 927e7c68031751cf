package rtc

import (
	"errors"
	"time"

	"github.com/livekit/protocol/auth"
)

var ErrNotConfigured = errors.New("livekit credentials not configured")

// TokenIssuer mints LiveKit access tokens for meeting rooms.
type TokenIssuer struct {
	apiKey    string
	apiSecret string
	url       string
}

func NewTokenIssuer(apiKey, apiSecret, url string) *TokenIssuer {
	return &TokenIssuer{apiKey: apiKey, apiSecret: apiSecret, url: url}
}

// URL returns the LiveKit server URL clients should connect to.
func (t *TokenIssuer) URL() string {
	return t.url
}

// JoinToken mints a room-join token for the given participant.
func (t *TokenIssuer) JoinToken(meetingID, userID string, validFor time.Duration) (string, error) {
	if t.apiKey == "" || t.apiSecret == "" {
		return "", ErrNotConfigured
	}
	if validFor <= 0 {
		validFor = time.Hour
	}

	at := auth.NewAccessToken(t.apiKey, t.apiSecret)
	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     meetingID,
	}
	at.AddGrant(grant).
		SetIdentity(userID).
		SetValidFor(validFor)

	return at.ToJWT()
}
