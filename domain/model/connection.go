package model

import (
	"strings"
	"time"
)

// Network identifies an external social network.
type Network string

const (
	NetworkFacebook  Network = "facebook"
	NetworkInstagram Network = "instagram"
	NetworkTwitter   Network = "twitter"
	NetworkYouTube   Network = "youtube"
	NetworkTikTok    Network = "tiktok"
)

// Networks lists every network the service knows how to talk to.
var Networks = []Network{NetworkFacebook, NetworkInstagram, NetworkTwitter, NetworkYouTube, NetworkTikTok}

// ParseNetwork normalizes user input ("X" is accepted as twitter).
func ParseNetwork(v string) (Network, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "x" {
		v = string(NetworkTwitter)
	}
	for _, n := range Networks {
		if string(n) == v {
			return n, true
		}
	}
	return "", false
}

type ConnectionStatus string

const (
	ConnectionUnlinked ConnectionStatus = "unlinked"
	ConnectionLinked   ConnectionStatus = "linked"
	ConnectionExpired  ConnectionStatus = "expired"
	ConnectionRevoked  ConnectionStatus = "revoked"
)

// Connection is the persisted link between an owner account and one network account.
// At most one non-revoked row exists per (owner, network).
type Connection struct {
	ID                string           `json:"id"`
	OwnerID           string           `json:"owner_id"`
	Network           Network          `json:"network"`
	Status            ConnectionStatus `json:"status"`
	AccessToken       string           `json:"-"`
	RefreshToken      string           `json:"-"`
	ExternalProfileID string           `json:"external_profile_id"`
	Handle            string           `json:"handle"`
	FollowerCount     int64            `json:"follower_count"`
	AdAccountID       *string          `json:"ad_account_id,omitempty"`
	Scopes            string           `json:"scopes"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	LinkedAt          time.Time        `json:"linked_at"`
	RevokedAt         *time.Time       `json:"revoked_at,omitempty"`
	Version           int64            `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Credential is the part of a Connection handed to a provider client for one call.
type Credential struct {
	AccessToken       string
	RefreshToken      string
	ExpiresAt         *time.Time
	ExternalProfileID string
	AdAccountID       string
	Scopes            string
}

// Credential extracts the provider-facing credential.
func (c *Connection) Credential() Credential {
	cred := Credential{
		AccessToken:       c.AccessToken,
		RefreshToken:      c.RefreshToken,
		ExpiresAt:         c.ExpiresAt,
		ExternalProfileID: c.ExternalProfileID,
		Scopes:            c.Scopes,
	}
	if c.AdAccountID != nil {
		cred.AdAccountID = *c.AdAccountID
	}
	return cred
}

// Usable reports whether the connection may be used for remote calls right now.
func (c *Connection) Usable(now time.Time) bool {
	if c == nil || c.Status != ConnectionLinked || c.AccessToken == "" {
		return false
	}
	return !c.Expired(now)
}

// Expired reports whether the access credential is past its expiry.
func (c *Connection) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// Refreshable reports whether an expired credential can be renewed without the user.
func (c *Connection) Refreshable() bool {
	return c.RefreshToken != ""
}

// Profile is the network identity resolved after a token exchange.
type Profile struct {
	ExternalID    string
	Handle        string
	FollowerCount int64
	AdAccountID   string
	// AccessToken replaces the user token when the network posts with a
	// different token (Facebook page tokens).
	AccessToken string
}

// LinkAttempt is the server-side record behind an OAuth state token.
type LinkAttempt struct {
	State     string    `json:"state"`
	OwnerID   string    `json:"owner_id"`
	Network   Network   `json:"network"`
	Verifier  string    `json:"verifier"`
	ExpiresAt time.Time `json:"expires_at"`
}
