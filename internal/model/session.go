package model

import "time"

// SessionDetails records where a session was opened from. The user agent is
// parsed into device/OS/browser at login time so the stored shape stays flat.
type SessionDetails struct {
	IP      string `json:"ip"`
	Device  string `json:"device,omitempty"`
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
}

// SessionToken mirrors the 'session_tokens' table, one row per active
// device session. Only a SHA-256 hash of the refresh token is stored; the
// raw value is returned to the client once at login and never persisted.
//
// LastTokenIssuedAt moves forward every time a new access token is minted
// for this session; the expiry sweeper uses it to find abandoned sessions.
type SessionToken struct {
	ID                string // uuid, correlated via the access token's refreshTokenId claim
	UserID            uint64
	RefreshTokenHash  string
	CreatedAt         time.Time
	LastTokenIssuedAt time.Time
	Details           SessionDetails
}
