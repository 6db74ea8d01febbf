// Copyright 2025 The Sigstore Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package signature

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/sigstore/sigstore/pkg/cryptoutils"
	"github.com/sigstore/sigstore/pkg/oauthflow"
	"golang.org/x/oauth2"

	"github.com/sigstore/playbook-integrity/pkg/integrity"
)

const (
	// IssuerProdURL is the public Sigstore OIDC issuer.
	IssuerProdURL = "https://oauth2.sigstore.dev/auth"
	// DefaultClientID is the OAuth client registered with the issuer.
	DefaultClientID = "sigstore"

	oobRedirectURL = "urn:ietf:wg:oauth:2.0:oob"

	// SigstoreTokenEnv holds a ready OIDC identity token.
	SigstoreTokenEnv = "SIGSTORE_ID_TOKEN"
	// GitHub Actions exposes a bearer token and an endpoint that exchanges
	// it for an identity token with the requested audience.
	actionsRequestTokenEnv = "ACTIONS_ID_TOKEN_REQUEST_TOKEN"
	actionsRequestURLEnv   = "ACTIONS_ID_TOKEN_REQUEST_URL"
	actionsAudience        = "sigstore"
)

// TokenSource supplies the OIDC identity token for keyless signing.
type TokenSource interface {
	IDToken(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource that always returns the same token.
type StaticToken string

// IDToken implements TokenSource.
func (s StaticToken) IDToken(context.Context) (string, error) {
	if s == "" {
		return "", integrity.Configuration("identity token is empty")
	}
	return string(s), nil
}

// OIDCTokenSource looks for an ambient token in the environment and, when
// Interactive is set, falls back to the OAuth flow against Issuer.
type OIDCTokenSource struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	// Interactive allows a browser based flow when no ambient token exists.
	Interactive bool
	// ForceOOB prints the authorization URL and reads the code from In
	// instead of starting a local callback server.
	ForceOOB bool
	In       io.Reader
	Out      io.Writer
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
	// HTTPClient is used for the GitHub Actions token exchange.
	HTTPClient *http.Client
}

// DefaultTokenSource reads ambient tokens only.
func DefaultTokenSource() *OIDCTokenSource {
	return &OIDCTokenSource{}
}

// IDToken implements TokenSource. SIGSTORE_ID_TOKEN wins over a GitHub
// Actions exchange, which wins over the interactive flow.
func (s *OIDCTokenSource) IDToken(ctx context.Context) (string, error) {
	getenv := s.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if tok := getenv(SigstoreTokenEnv); tok != "" {
		return tok, nil
	}
	if bearer, endpoint := getenv(actionsRequestTokenEnv), getenv(actionsRequestURLEnv); bearer != "" && endpoint != "" {
		return s.actionsToken(ctx, endpoint, bearer)
	}
	if !s.Interactive {
		return "", integrity.Configuration("no identity token: set keyless_signer_id or %s, or run in GitHub Actions with id-token permission", SigstoreTokenEnv)
	}

	issuer := s.Issuer
	if issuer == "" {
		issuer = IssuerProdURL
	}
	clientID := s.ClientID
	if clientID == "" {
		clientID = DefaultClientID
	}

	var getter oauthflow.TokenGetter = oauthflow.DefaultIDTokenGetter
	redirectURL := ""
	if s.ForceOOB {
		getter = &oobIDTokenGetter{in: s.In, out: s.Out}
	}
	tok, err := oauthflow.OIDConnect(issuer, clientID, s.ClientSecret, redirectURL, getter)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeBackend, "failed to get ID token via OIDC flow", err)
	}
	return tok.RawString, nil
}

// actionsToken exchanges the GitHub Actions request token for an identity
// token scoped to the sigstore audience.
func (s *OIDCTokenSource) actionsToken(ctx context.Context, endpoint, bearer string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeConfiguration, "parsing "+actionsRequestURLEnv, err)
	}
	q := u.Query()
	q.Set("audience", actionsAudience)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeBackend, "building GitHub Actions token request", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Accept", "application/json")

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", integrity.New(integrity.ErrTypeBackend, "requesting GitHub Actions identity token", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", integrity.New(integrity.ErrTypeBackend,
			fmt.Sprintf("GitHub Actions token endpoint returned %s", resp.Status), nil)
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", integrity.New(integrity.ErrTypeBackend, "decoding GitHub Actions token response", err)
	}
	if body.Value == "" {
		return "", integrity.New(integrity.ErrTypeBackend, "GitHub Actions token response carries no token", nil)
	}
	return body.Value, nil
}

// oobIDTokenGetter runs the out-of-band flow: it prints the authorization
// URL and reads the verification code back from the user.
type oobIDTokenGetter struct {
	in  io.Reader
	out io.Writer
}

// GetIDToken implements oauthflow.TokenGetter.
func (o *oobIDTokenGetter) GetIDToken(p *oidc.Provider, cfg oauth2.Config) (*oauthflow.OIDCIDToken, error) {
	in, out := o.in, o.out
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	cfg.RedirectURL = oobRedirectURL

	pkce, err := oauthflow.NewPKCE(p)
	if err != nil {
		return nil, err
	}
	state := cryptoutils.GenerateRandomURLSafeString(128)
	nonce := cryptoutils.GenerateRandomURLSafeString(128)

	opts := append(pkce.AuthURLOpts(), oauth2.AccessTypeOnline, oidc.Nonce(nonce))
	fmt.Fprintln(out, "Go to the following link in a browser:")
	fmt.Fprintf(out, "\n\t%s\n", cfg.AuthCodeURL(state, opts...))
	fmt.Fprint(out, "Enter verification code: ")

	code, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read verification code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("no verification code entered")
	}

	ctx := context.Background()
	token, err := cfg.Exchange(ctx, code, append(pkce.TokenURLOpts(), oidc.Nonce(nonce))...)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}
	raw, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("id_token not present in token response")
	}

	idToken, err := p.Verifier(&oidc.Config{ClientID: cfg.ClientID}).Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}
	if idToken.Nonce != nonce {
		return nil, errors.New("nonce mismatch")
	}
	if idToken.AccessTokenHash != "" {
		if err := idToken.VerifyAccessToken(token.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to verify access token: %w", err)
		}
	}
	subject, err := oauthflow.SubjectFromToken(idToken)
	if err != nil {
		return nil, err
	}
	return &oauthflow.OIDCIDToken{RawString: raw, Subject: subject}, nil
}
