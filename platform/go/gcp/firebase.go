package gcp

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// FirebaseConfig locates the Firebase project. Without a credentials file the SDK falls back to
// application default credentials.
type FirebaseConfig struct {
	CredentialsFile string `env:"FIREBASE_CONFIG"`
	ProjectID       string `env:"GCLOUD_PROJECT"`
}

// GetApp Creates a Firebase App instance.
func GetApp(ctx context.Context, cfg FirebaseConfig) (*firebase.App, error) {
	var appConfig *firebase.Config
	if cfg.ProjectID != "" {
		appConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	return firebase.NewApp(ctx, appConfig, opts...)
}

// InitFirebaseAuth initializes the Firebase App and returns an Auth client.
func InitFirebaseAuth(ctx context.Context, cfg FirebaseConfig) (*firebase.App, *firebaseauth.Client, error) {
	firebaseApp, err := GetApp(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase app [%w]", err)
	}

	fbAuth, err := firebaseApp.Auth(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("error initializing firebase auth [%w]", err)
	}

	return firebaseApp, fbAuth, nil
}
