package salesforce

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// AuthMethod names one supported authentication scheme.
type AuthMethod string

const (
	AuthBearer            AuthMethod = "bearer"
	AuthBasic             AuthMethod = "basic"
	AuthClientCredentials AuthMethod = "oauth2_client_credentials"
	AuthAuthorizationCode AuthMethod = "oauth2_authorization_code"

	DefaultTokenURL = "https://login.salesforce.com/services/oauth2/token"
)

var (
	ErrNoAuthMethod      = errors.New("no supported authentication method configured")
	ErrMissingCredential = errors.New("missing credential")
)

// Credentials is the raw authentication material from configuration.
type Credentials struct {
	Method       AuthMethod
	AccessToken  string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TokenURL     string
	Scopes       []string
}

// ResolveMethod returns the explicit method or infers one from the material present.
func (c Credentials) ResolveMethod() AuthMethod {
	if c.Method != "" {
		return c.Method
	}
	switch {
	case c.AccessToken != "":
		return AuthBearer
	case c.ClientID != "" && c.RefreshToken != "":
		return AuthAuthorizationCode
	case c.ClientID != "" && c.ClientSecret != "":
		return AuthClientCredentials
	case c.Username != "" && c.Password != "":
		return AuthBasic
	}
	return ""
}

// Authorization is the resolved header plus the instance URL when the token
// endpoint reported one.
type Authorization struct {
	Header      string
	InstanceURL string
	Method      AuthMethod
}

// Authenticator produces an Authorization for one invocation.
type Authenticator interface {
	Authorize(ctx context.Context) (*Authorization, error)
	Method() AuthMethod
}

// TokenError is a rejected OAuth2 token request.
type TokenError struct {
	StatusCode int
	ErrorCode  string
	Err        error
}

func (e *TokenError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("token request rejected: %d %s", e.StatusCode, e.ErrorCode)
	}
	return fmt.Sprintf("token request rejected: %d", e.StatusCode)
}

func (e *TokenError) Unwrap() error { return e.Err }

// NewAuthenticator selects an implementation for creds. Missing material is
// reported by Authorize, not here, so that a misconfigured deployment fails
// each job with a configuration error. hc is used for token requests.
func NewAuthenticator(creds Credentials, hc *http.Client) Authenticator {
	if creds.TokenURL == "" {
		creds.TokenURL = DefaultTokenURL
	}

	switch method := creds.ResolveMethod(); method {
	case AuthBearer:
		return &staticAuthenticator{method: method, scheme: "Bearer", secret: creds.AccessToken, missing: missingFields(map[string]string{"access_token": creds.AccessToken})}
	case AuthBasic:
		secret := base64.StdEncoding.EncodeToString([]byte(creds.Username + ":" + creds.Password))
		return &staticAuthenticator{method: method, scheme: "Basic", secret: secret, missing: missingFields(map[string]string{
			"username": creds.Username,
			"password": creds.Password,
		})}
	case AuthClientCredentials:
		return &oauth2Authenticator{method: method, creds: creds, hc: hc, missing: missingFields(map[string]string{
			"client_id":     creds.ClientID,
			"client_secret": creds.ClientSecret,
		})}
	case AuthAuthorizationCode:
		return &oauth2Authenticator{method: method, creds: creds, hc: hc, missing: missingFields(map[string]string{
			"client_id":     creds.ClientID,
			"client_secret": creds.ClientSecret,
			"refresh_token": creds.RefreshToken,
		})}
	default:
		return &unconfiguredAuthenticator{method: method}
	}
}

func missingFields(fields map[string]string) []string {
	var missing []string
	for _, name := range []string{"access_token", "username", "password", "client_id", "client_secret", "refresh_token"} {
		if v, ok := fields[name]; ok && strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func missingError(method AuthMethod, missing []string) error {
	return fmt.Errorf("%w for %s: %s", ErrMissingCredential, method, strings.Join(missing, ", "))
}

type staticAuthenticator struct {
	method  AuthMethod
	scheme  string
	secret  string
	missing []string
}

func (a *staticAuthenticator) Method() AuthMethod { return a.method }

func (a *staticAuthenticator) Authorize(context.Context) (*Authorization, error) {
	if len(a.missing) > 0 {
		return nil, missingError(a.method, a.missing)
	}
	return &Authorization{Header: a.scheme + " " + a.secret, Method: a.method}, nil
}

// oauth2Authenticator fetches a fresh token per call; nothing is cached between jobs.
type oauth2Authenticator struct {
	method  AuthMethod
	creds   Credentials
	hc      *http.Client
	missing []string
}

func (a *oauth2Authenticator) Method() AuthMethod { return a.method }

func (a *oauth2Authenticator) Authorize(ctx context.Context) (*Authorization, error) {
	if len(a.missing) > 0 {
		return nil, missingError(a.method, a.missing)
	}

	if a.hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.hc)
	}

	var (
		tok *oauth2.Token
		err error
	)
	switch a.method {
	case AuthClientCredentials:
		cfg := clientcredentials.Config{
			ClientID:     a.creds.ClientID,
			ClientSecret: a.creds.ClientSecret,
			TokenURL:     a.creds.TokenURL,
			Scopes:       a.creds.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		tok, err = cfg.Token(ctx)
	default:
		cfg := oauth2.Config{
			ClientID:     a.creds.ClientID,
			ClientSecret: a.creds.ClientSecret,
			Scopes:       a.creds.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  a.creds.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
		tok, err = cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: a.creds.RefreshToken}).Token()
	}
	if err != nil {
		return nil, convertTokenError(err)
	}

	auth := &Authorization{
		Header: tok.Type() + " " + tok.AccessToken,
		Method: a.method,
	}
	if instanceURL, ok := tok.Extra("instance_url").(string); ok {
		auth.InstanceURL = strings.TrimRight(instanceURL, "/")
	}
	return auth, nil
}

func convertTokenError(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) && rerr.Response != nil {
		return &TokenError{StatusCode: rerr.Response.StatusCode, ErrorCode: rerr.ErrorCode, Err: err}
	}
	return fmt.Errorf("token request failed: %w", err)
}

type unconfiguredAuthenticator struct {
	method AuthMethod
}

func (a *unconfiguredAuthenticator) Method() AuthMethod { return a.method }

func (a *unconfiguredAuthenticator) Authorize(context.Context) (*Authorization, error) {
	if a.method != "" {
		return nil, fmt.Errorf("%w: unsupported method %q", ErrNoAuthMethod, a.method)
	}
	return nil, ErrNoAuthMethod
}
