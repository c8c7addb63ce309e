package config

import (
	"os"
	"time"

	"github.com/m-mizutani/fabrica/pkg/model"
	"github.com/m-mizutani/fabrica/pkg/service/remote"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// Routing maps user identities to their ordered list of remote generation
// services, plus the retry policy defaults. Loaded once at startup.
type Routing struct {
	Defaults Policy          `yaml:"defaults"`
	Users    map[string]User `yaml:"users"`
}

// Policy holds the retry settings for a client.
type Policy struct {
	MaxRetries *int     `yaml:"max_retries"`
	RetryDelay Duration `yaml:"retry_delay"`
	RequireAll *bool    `yaml:"require_all"`
}

// User is the routing entry of one user identity.
type User struct {
	Services []Service `yaml:"services"`
	Policy   `yaml:",inline"`
}

// Service is one configured remote endpoint.
type Service struct {
	ID      model.ServiceID `yaml:"id"`
	Address string          `yaml:"address"`
}

// Duration wraps time.Duration for YAML values like "5s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return goerr.Wrap(err, "retry delay must be a duration string")
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return goerr.Wrap(err, "invalid duration", goerr.V("value", raw))
	}

	*d = Duration(parsed)
	return nil
}

// Load reads and validates a routing file.
func Load(path string) (*Routing, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read routing config", goerr.V("path", path))
	}

	var routing Routing
	if err := yaml.Unmarshal(data, &routing); err != nil {
		return nil, goerr.Wrap(err, "failed to parse routing config", goerr.V("path", path))
	}

	if err := routing.Validate(); err != nil {
		return nil, err
	}

	return &routing, nil
}

// Validate checks structural consistency of the routing table.
func (r *Routing) Validate() error {
	if len(r.Users) == 0 {
		return goerr.New("routing config has no users")
	}

	for userID, user := range r.Users {
		if userID == "" {
			return goerr.New("user id must not be empty")
		}
		if len(user.Services) == 0 {
			return goerr.New("user has no services", goerr.V("user", userID))
		}

		seen := map[model.ServiceID]bool{}
		for _, svc := range user.Services {
			if svc.ID == "" {
				return goerr.New("service id must not be empty", goerr.V("user", userID))
			}
			if svc.Address == "" {
				return goerr.New("service address must not be empty",
					goerr.V("user", userID),
					goerr.V("service", svc.ID),
				)
			}
			if seen[svc.ID] {
				return goerr.New("duplicate service id",
					goerr.V("user", userID),
					goerr.V("service", svc.ID),
				)
			}
			seen[svc.ID] = true
		}

		if user.MaxRetries != nil && *user.MaxRetries < 0 {
			return goerr.New("max_retries must not be negative", goerr.V("user", userID))
		}
	}

	if r.Defaults.MaxRetries != nil && *r.Defaults.MaxRetries < 0 {
		return goerr.New("default max_retries must not be negative")
	}

	return nil
}

// EndpointsFor builds the endpoint table for one user. Endpoint values are
// freshly created per call so client sessions never share mutable state.
func (r *Routing) EndpointsFor(userID string) ([]*model.Endpoint, error) {
	user, ok := r.Users[userID]
	if !ok {
		return nil, goerr.New("user is not configured", goerr.V("user", userID))
	}

	endpoints := make([]*model.Endpoint, 0, len(user.Services))
	for _, svc := range user.Services {
		endpoints = append(endpoints, model.NewEndpoint(svc.ID, svc.Address))
	}
	return endpoints, nil
}

// ClientConfig resolves the retry policy for one user, falling back to the
// routing defaults and then to built-in values.
func (r *Routing) ClientConfig(userID string) remote.Config {
	cfg := remote.Config{
		MaxRetries: 3,
		RetryDelay: 5 * time.Second,
	}

	apply := func(p Policy) {
		if p.MaxRetries != nil {
			cfg.MaxRetries = *p.MaxRetries
		}
		if p.RetryDelay != 0 {
			cfg.RetryDelay = time.Duration(p.RetryDelay)
		}
		if p.RequireAll != nil {
			cfg.RequireAll = *p.RequireAll
		}
	}

	apply(r.Defaults)
	if user, ok := r.Users[userID]; ok {
		apply(user.Policy)
	}

	return cfg
}
