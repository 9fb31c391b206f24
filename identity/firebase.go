package identity

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// FirebaseVerifier checks ID tokens with the Firebase Admin SDK. Only the
// project's public signing keys are needed, so no service account is used.
type FirebaseVerifier struct {
	client *auth.Client
	logger *zap.Logger
}

// NewFirebaseVerifier initializes an Admin SDK app for projectID.
func NewFirebaseVerifier(ctx context.Context, projectID string, logger *zap.Logger, opts ...option.ClientOption) (*FirebaseVerifier, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firebase project id is required")
	}

	opts = append([]option.ClientOption{option.WithoutAuthentication()}, opts...)
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		logger.Error("Failed to initialize Firebase Admin SDK app", zap.Error(err), zap.String("projectID", projectID))
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		logger.Error("Failed to get Firebase Auth client", zap.Error(err))
		return nil, fmt.Errorf("error getting Firebase Auth client: %w", err)
	}

	logger.Info("Firebase token verification enabled", zap.String("projectID", projectID))
	return &FirebaseVerifier{client: client, logger: logger}, nil
}

// VerifyIDToken implements TokenVerifier.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("ID token must not be empty")
	}

	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		v.logger.Warn("Firebase ID token verification failed", zap.Error(err))
		return "", fmt.Errorf("failed to verify Firebase ID token: %w", err)
	}

	v.logger.Debug("Firebase ID token verified successfully", zap.String("uid", token.UID))
	return token.UID, nil
}
