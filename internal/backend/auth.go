package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/velofit/velofit/internal/telemetry/tracing"

	log "github.com/sirupsen/logrus"
)

// AuthClient talks to the platform's hosted auth API: email/password
// sign-in/up, token refresh and password recovery. Password hashing and
// verification happen server-side; this client only moves credentials
// and tokens.
type AuthClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewAuthClient(baseURL, apiKey string, httpClient *http.Client) *AuthClient {
	return &AuthClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	User         User   `json:"user"`
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (ac *AuthClient) SignIn(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.signIn")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if email == "" || password == "" {
		return nil, NewValidationError("email and password must not be empty")
	}

	return ac.sessionRequest(
		ctx,
		ac.baseURL+"/auth/v1/token?grant_type=password",
		credentialsRequest{Email: email, Password: password},
		"sign in",
	)
}

func (ac *AuthClient) SignUp(ctx context.Context, email, password string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.signUp")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if email == "" || password == "" {
		return nil, NewValidationError("email and password must not be empty")
	}

	return ac.sessionRequest(
		ctx,
		ac.baseURL+"/auth/v1/signup",
		credentialsRequest{Email: email, Password: password},
		"sign up",
	)
}

func (ac *AuthClient) RefreshSession(ctx context.Context, refreshToken string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.refresh")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if refreshToken == "" {
		return nil, ErrNotAuthenticated
	}

	return ac.sessionRequest(
		ctx,
		ac.baseURL+"/auth/v1/token?grant_type=refresh_token",
		map[string]string{"refresh_token": refreshToken},
		"refresh session",
	)
}

func (ac *AuthClient) ResetPasswordForEmail(ctx context.Context, email string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "auth.resetPassword")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if email == "" {
		return NewValidationError("email must not be empty")
	}

	_, err = ac.authPost(ctx, ac.baseURL+"/auth/v1/recover", map[string]string{"email": email}, "reset password")
	return err
}

// SignOut revokes the session server-side. Best effort: local teardown
// proceeds regardless of the outcome.
func (ac *AuthClient) SignOut(ctx context.Context, accessToken string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ac.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		log.Errorf("sign out, new request: %s", err)
		return
	}
	req.Header.Set("apikey", ac.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := ac.httpClient.Do(req)
	if err != nil {
		log.Errorf("sign out: %s", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Errorf("sign out: unexpected status %d", resp.StatusCode)
	}
}

func (ac *AuthClient) sessionRequest(ctx context.Context, reqURL string, payload any, operation string) (*Session, error) {
	respBytes, err := ac.authPost(ctx, reqURL, payload, operation)
	if err != nil {
		return nil, err
	}

	session := &Session{}
	if err := json.Unmarshal(respBytes, session); err != nil {
		return nil, &RemoteError{Operation: operation, Message: fmt.Sprintf("unmarshal session: %s", err)}
	}
	if session.AccessToken == "" {
		return nil, &RemoteError{Operation: operation, Message: "no access token in response"}
	}
	return session, nil
}

func (ac *AuthClient) authPost(ctx context.Context, reqURL string, payload any, operation string) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, &RemoteError{Operation: operation, Message: fmt.Sprintf("marshal request: %s", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, &RemoteError{Operation: operation, Message: err.Error()}
	}
	req.Header.Set("apikey", ac.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := ac.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteError{Operation: operation, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Operation: operation, Message: fmt.Sprintf("read response: %s", err)}
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrNotAuthenticated
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, remoteError(operation, resp.StatusCode, respBytes)
	}
	return respBytes, nil
}
