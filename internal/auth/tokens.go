package auth

import (
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/pders01/searchable-files/internal/storage"
)

// tokensFromResponse splits a Globus token response into one TokenData
// per resource server. The primary token carries resource_server in its
// extra fields, the rest arrive in other_tokens.
func tokensFromResponse(tok *oauth2.Token) ([]storage.TokenData, error) {
	primaryRS, _ := tok.Extra("resource_server").(string)
	if primaryRS == "" {
		return nil, fmt.Errorf("token response did not include a resource server")
	}
	scope, _ := tok.Extra("scope").(string)

	out := []storage.TokenData{{
		ResourceServer:   primaryRS,
		AccessToken:      tok.AccessToken,
		RefreshToken:     tok.RefreshToken,
		ExpiresAtSeconds: tok.Expiry.Unix(),
		Scope:            scope,
		TokenType:        tok.TokenType,
	}}

	others, _ := tok.Extra("other_tokens").([]any)
	for i, raw := range others {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("other_tokens[%d] is not an object", i)
		}
		td := storage.TokenData{
			ResourceServer: stringField(m, "resource_server"),
			AccessToken:    stringField(m, "access_token"),
			RefreshToken:   stringField(m, "refresh_token"),
			Scope:          stringField(m, "scope"),
			TokenType:      stringField(m, "token_type"),
		}
		if td.ResourceServer == "" || td.AccessToken == "" {
			return nil, fmt.Errorf("other_tokens[%d] is incomplete", i)
		}
		if exp, ok := m["expires_in"].(float64); ok {
			td.ExpiresAtSeconds = time.Now().Add(time.Duration(exp) * time.Second).Unix()
		}
		out = append(out, td)
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func oauthToken(td storage.TokenData) *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  td.AccessToken,
		RefreshToken: td.RefreshToken,
		TokenType:    td.TokenType,
	}
	if td.ExpiresAtSeconds > 0 {
		tok.Expiry = time.Unix(td.ExpiresAtSeconds, 0)
	}
	return tok
}
