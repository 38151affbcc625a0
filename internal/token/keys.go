package token

// Key layout in the revocation store:
//
//	token:blacklist:{jti}    -> "blacklisted", expires with the access token
//	token:refresh:{userId}   -> tokenId of the single live refresh token
const (
	blacklistPrefix = "token:blacklist:"
	refreshPrefix   = "token:refresh:"
	blacklistMarker = "blacklisted"
)

func BlacklistKey(jti string) string { return blacklistPrefix + jti }

func RefreshKey(userID string) string { return refreshPrefix + userID }
