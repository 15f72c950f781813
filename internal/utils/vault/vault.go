package vault

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const defaultTokenPath = "/var/run/secrets/kubernetes.io/serviceaccount/token"

// Client reads the service's secrets from a Vault KV v2 path, logging in
// with the pod's Kubernetes service account.
type Client struct {
	http      *resty.Client
	kvPath    string
	role      string
	tokenPath string
	token     string
}

type Option func(*Client)

// WithTokenPath points the login at another service account token file.
func WithTokenPath(path string) Option {
	return func(c *Client) { c.tokenPath = path }
}

func New(addr, kvPath, role string, opts ...Option) *Client {
	c := &Client{
		http:      resty.New().SetBaseURL(strings.TrimRight(addr, "/")),
		kvPath:    strings.Trim(kvPath, "/"),
		role:      role,
		tokenPath: defaultTokenPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type loginResponse struct {
	Auth *struct {
		ClientToken string `json:"client_token"`
	} `json:"auth"`
	Errors []string `json:"errors"`
}

type kvResponse struct {
	Data *struct {
		Data map[string]interface{} `json:"data"`
	} `json:"data"`
	Errors []string `json:"errors"`
}

// Login exchanges the service account token for a Vault token.
func (c *Client) Login(ctx context.Context) error {
	jwt, err := os.ReadFile(c.tokenPath)
	if err != nil {
		return errors.Wrap(err, "read service account token")
	}

	var out loginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"jwt": strings.TrimSpace(string(jwt)), "role": c.role}).
		SetResult(&out).
		SetError(&out).
		Post("/v1/auth/kubernetes/login")
	if err != nil {
		return errors.Wrap(err, "vault login")
	}
	if resp.IsError() {
		return errors.Errorf("vault login failed with status %d: %s", resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Auth == nil || out.Auth.ClientToken == "" {
		return errors.New("vault login returned no client token")
	}

	c.token = out.Auth.ClientToken
	return nil
}

// Secrets returns the key/value pairs stored at the KV path. Non-string
// values are formatted with %v.
func (c *Client) Secrets(ctx context.Context) (map[string]string, error) {
	if c.token == "" {
		if err := c.Login(ctx); err != nil {
			return nil, err
		}
	}

	var out kvResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("X-Vault-Token", c.token).
		SetResult(&out).
		SetError(&out).
		Get("/v1/" + c.kvPath)
	if err != nil {
		return nil, errors.Wrap(err, "read vault secrets")
	}
	if resp.IsError() {
		return nil, errors.Errorf("vault read of %s failed with status %d: %s", c.kvPath, resp.StatusCode(), strings.Join(out.Errors, "; "))
	}
	if out.Data == nil || out.Data.Data == nil {
		return nil, errors.Errorf("vault path %s holds no data", c.kvPath)
	}

	secrets := make(map[string]string, len(out.Data.Data))
	for k, v := range out.Data.Data {
		if s, ok := v.(string); ok {
			secrets[k] = s
			continue
		}
		secrets[k] = fmt.Sprintf("%v", v)
	}
	return secrets, nil
}
