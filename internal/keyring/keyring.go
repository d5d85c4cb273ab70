// Package keyring stores API credentials in the OS keychain, with
// environment variables as the fallback for headless machines.
package keyring

import (
	"errors"
	"fmt"
	"os"
	"strings"

	zkr "github.com/zalando/go-keyring"
)

const serviceName = "architect"

// DisabledEnv opts out of the OS keychain (headless/CI/Docker)
const DisabledEnv = "ARCHITECT_KEYRING_DISABLED"

// ErrNotFound means neither the keychain nor the environment had a value
var ErrNotFound = errors.New("credential not found")

// Credential names a stored secret
type Credential struct {
	Name    string   // short name used on the command line
	Account string   // keychain account
	EnvVars []string // fallbacks, checked in order
}

var (
	DeepSeek = Credential{Name: "deepseek", Account: "deepseek_api_key", EnvVars: []string{"DEEPSEEK_API_KEY", "OPENAI_API_KEY"}}
	GitHub   = Credential{Name: "github", Account: "github_token", EnvVars: []string{"GITHUB_TOKEN"}}
)

// Credentials lists every known credential
var Credentials = []Credential{DeepSeek, GitHub}

// Lookup finds a credential by its short name
func Lookup(name string) (Credential, error) {
	for _, c := range Credentials {
		if c.Name == strings.ToLower(name) {
			return c, nil
		}
	}
	return Credential{}, fmt.Errorf("unknown credential %q (want deepseek or github)", name)
}

// Disabled reports whether ARCHITECT_KEYRING_DISABLED=1 is set
func Disabled() bool {
	return os.Getenv(DisabledEnv) == "1"
}

// Get returns the keychain value, else the first non-empty env fallback
func Get(c Credential) (string, error) {
	if !Disabled() {
		v, err := zkr.Get(serviceName, c.Account)
		if err == nil && v != "" {
			return v, nil
		}
	}
	for _, env := range c.EnvVars {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: %s (set it with `architect key set %s` or %s)",
		ErrNotFound, c.Name, c.Name, strings.Join(c.EnvVars, " / "))
}

// Resolver returns a func that looks the credential up on every call and
// yields "" when it is missing.
func Resolver(c Credential) func() string {
	return func() string {
		v, _ := Get(c)
		return v
	}
}

// Set stores value in the OS keychain
func Set(c Credential, value string) error {
	if Disabled() {
		return fmt.Errorf("keychain disabled by %s; use %s instead", DisabledEnv, strings.Join(c.EnvVars, " / "))
	}
	if err := zkr.Set(serviceName, c.Account, value); err != nil {
		return fmt.Errorf("keychain set: %w", err)
	}
	return nil
}

// Delete removes the value from the OS keychain. A missing entry is not an error.
func Delete(c Credential) error {
	if Disabled() {
		return nil
	}
	if err := zkr.Delete(serviceName, c.Account); err != nil && !errors.Is(err, zkr.ErrNotFound) {
		return fmt.Errorf("keychain delete: %w", err)
	}
	return nil
}

// Available returns true if the OS keychain is functional. It exercises the
// keychain with a write/read/delete cycle.
func Available() bool {
	if Disabled() {
		return false
	}
	testService := "architect-keyring-check"
	testAccount := "check"
	if err := zkr.Set(testService, testAccount, "ok"); err != nil {
		return false
	}
	_ = zkr.Delete(testService, testAccount)
	return true
}
