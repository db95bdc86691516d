package backend

import (
	"net/url"
	"strconv"
)

type DeepLinkKind string

const (
	// DeepLinkSession carries OAuth-style token fragments for a new session
	DeepLinkSession DeepLinkKind = "session"
	// DeepLinkVerification confirms an email address
	DeepLinkVerification DeepLinkKind = "verification"
	// DeepLinkRecovery starts the password-recovery flow
	DeepLinkRecovery DeepLinkKind = "recovery"
	// DeepLinkError carries an auth error from the redirect
	DeepLinkError DeepLinkKind = "error"
)

type DeepLink struct {
	Kind         DeepLinkKind
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
	ErrorMessage string
}

// ParseDeepLink extracts auth callback data from a redirect URL. The
// backend puts tokens in the URL fragment (velofit://auth#access_token=…)
// but some mail clients rewrite the fragment into query params, so both
// forms are accepted.
func ParseDeepLink(rawURL string) (*DeepLink, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, NewValidationError("malformed deep link: %s", err)
	}

	values, err := url.ParseQuery(parsed.Fragment)
	if err != nil || len(values) == 0 {
		values = parsed.Query()
	}

	if errDescription := values.Get("error_description"); errDescription != "" {
		return &DeepLink{
			Kind:         DeepLinkError,
			ErrorMessage: errDescription,
		}, nil
	}
	if errCode := values.Get("error"); errCode != "" {
		return &DeepLink{
			Kind:         DeepLinkError,
			ErrorMessage: errCode,
		}, nil
	}

	accessToken := values.Get("access_token")
	if accessToken == "" {
		return nil, NewValidationError("deep link carries no tokens and no error")
	}

	link := &DeepLink{
		Kind:         DeepLinkSession,
		AccessToken:  accessToken,
		RefreshToken: values.Get("refresh_token"),
	}
	if expiresIn, err := strconv.Atoi(values.Get("expires_in")); err == nil {
		link.ExpiresIn = expiresIn
	}

	switch values.Get("type") {
	case "signup", "email_change":
		link.Kind = DeepLinkVerification
	case "recovery":
		link.Kind = DeepLinkRecovery
	}

	return link, nil
}
