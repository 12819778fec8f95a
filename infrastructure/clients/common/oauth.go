package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"social-publisher/domain/model"
	"social-publisher/infrastructure/configuration"

	"golang.org/x/oauth2"
)

// OAuth wraps an oauth2.Config so exchanges share the call timeout and error taxonomy.
type OAuth struct {
	config *oauth2.Config
	http   *HTTPClient
	pkce   bool
}

func NewOAuth(client configuration.OAuthClient, endpoint oauth2.Endpoint, defaultScopes []string, httpClient *HTTPClient, pkce bool) *OAuth {
	scopes := client.Scopes
	if len(scopes) == 0 {
		scopes = defaultScopes
	}
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURI,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		http: httpClient,
		pkce: pkce,
	}
}

func (o *OAuth) Config() *oauth2.Config {
	return o.config
}

// AuthCodeURL adds the S256 challenge when the network requires PKCE.
func (o *OAuth) AuthCodeURL(state, verifier string, extra ...oauth2.AuthCodeOption) string {
	opts := append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline}, extra...)
	if o.pkce && verifier != "" {
		opts = append(opts, oauth2.S256ChallengeOption(verifier))
	}
	return o.config.AuthCodeURL(state, opts...)
}

func (o *OAuth) Exchange(ctx context.Context, code, verifier string, extra ...oauth2.AuthCodeOption) (*model.Credential, error) {
	ctx, cancel := o.context(ctx)
	defer cancel()

	opts := extra
	if o.pkce && verifier != "" {
		opts = append(opts, oauth2.VerifierOption(verifier))
	}
	tok, err := o.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, ClassifyOAuth(err)
	}
	return TokenCredential(tok), nil
}

// Refresh trades a refresh token for a new access token. Networks that rotate the
// refresh token return the new one; otherwise the old one is kept.
func (o *OAuth) Refresh(ctx context.Context, cred model.Credential) (*model.Credential, error) {
	if cred.RefreshToken == "" {
		return nil, Permanent(model.ReasonAuthRevoked, errors.New("no refresh token"))
	}
	ctx, cancel := o.context(ctx)
	defer cancel()

	tok, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		return nil, ClassifyOAuth(err)
	}
	out := TokenCredential(tok)
	if out.RefreshToken == "" {
		out.RefreshToken = cred.RefreshToken
	}
	out.ExternalProfileID = cred.ExternalProfileID
	out.AdAccountID = cred.AdAccountID
	if out.Scopes == "" {
		out.Scopes = cred.Scopes
	}
	return out, nil
}

func (o *OAuth) context(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, o.http.Timeout())
	return context.WithValue(ctx, oauth2.HTTPClient, o.http.Client()), cancel
}

// TokenCredential converts an oauth2 token into the stored credential shape.
func TokenCredential(tok *oauth2.Token) *model.Credential {
	cred := &model.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		cred.ExpiresAt = &exp
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		cred.Scopes = scope
	}
	return cred
}

// ClassifyOAuth maps token endpoint failures. invalid_grant means the user has to relink.
func ClassifyOAuth(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_token" {
			return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonAuthRevoked, Detail: re.ErrorCode, Err: err}
		}
		if status == http.StatusBadRequest {
			return &model.RemoteFailure{Class: model.ErrorPermanent, Reason: model.ReasonRejected, Detail: fmt.Sprintf("%s %s", re.ErrorCode, re.ErrorDescription), Err: err}
		}
		f := Classify(status, re.Body)
		f.Err = err
		return f
	}
	return TransportFailure(err)
}
