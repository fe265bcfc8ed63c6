package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RoutePolicy is one entry of the route policy file
type RoutePolicy struct {
	Strategy string   `yaml:"strategy"`
	Roles    []string `yaml:"roles"`
}

// RoutePolicyFile is the document read from ROUTE_POLICY_FILE
//
//	routes:
//	  products.create:
//	    strategy: current
//	    roles: [premium, admin]
type RoutePolicyFile struct {
	Routes map[string]RoutePolicy `yaml:"routes"`
}

// LoadRoutePolicies reads route policy overrides. An empty path yields no overrides.
func LoadRoutePolicies(path string) (map[string]RoutePolicy, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read route policy file: %w", err)
	}

	return ParseRoutePolicies(data)
}

// ParseRoutePolicies decodes a route policy document
func ParseRoutePolicies(data []byte) (map[string]RoutePolicy, error) {
	var file RoutePolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse route policy file: %w", err)
	}
	return file.Routes, nil
}
