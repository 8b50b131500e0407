package firebase

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// AuthClient verifies Firebase ID tokens issued by the identity service.
type AuthClient struct {
	client *auth.Client
}

func NewAuthClient(ctx context.Context, projectID string) (*AuthClient, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase auth client: %w", err)
	}

	return &AuthClient{client: client}, nil
}

// VerifyToken validates the ID token and returns the subject's user id.
func (a *AuthClient) VerifyToken(ctx context.Context, idToken string) (string, error) {
	token, err := a.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("invalid or expired token: %w", err)
	}
	return token.UID, nil
}
