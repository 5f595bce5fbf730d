package config

import (
	"os"

	"github.com/spf13/viper"

	"github.com/agentstation/enrollsync/pkg/errors"
)

// GetString is a helper to get string values from Viper.
// It checks both OS environment variables and Viper configuration.
func GetString(key string) string {
	// Check OS env directly first
	osValue := os.Getenv(key)
	viperValue := viper.GetString(key)

	// If Viper doesn't have it but OS does, return OS value
	if viperValue == "" && osValue != "" {
		return osValue
	}
	return viperValue
}

// Credential returns the API token of an application. An inline credential
// wins over credential_env; the variable is read through GetString so .env
// files loaded into the process count.
func (a App) Credential() (string, error) {
	if a.Token != "" {
		return a.Token, nil
	}
	if a.CredentialEnv == "" {
		return "", errors.NewConfigError("app "+a.AppID, "no credential or credential_env", errors.ErrCredentialRequired)
	}
	token := GetString(a.CredentialEnv)
	if token == "" {
		return "", errors.NewConfigError("app "+a.AppID, "environment variable "+a.CredentialEnv+" not set", errors.ErrCredentialRequired)
	}
	return token, nil
}

// CredentialConfigured reports whether a credential is available without
// returning it.
func (a App) CredentialConfigured() bool {
	_, err := a.Credential()
	return err == nil
}
