package liveserver

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk registry description:
//
//	default: us-1
//	servers:
//	  - id: us-1
//	    rtmp_domain: us1.example.com
//	    control_domain: us-live-1.example.com
type FileConfig struct {
	Default string         `yaml:"default"`
	Servers []ServerConfig `yaml:"servers"`
}

// ServerConfig describes one live server by its bare domains.
type ServerConfig struct {
	ID            string `yaml:"id"`
	RTMPDomain    string `yaml:"rtmp_domain"`
	ControlDomain string `yaml:"control_domain"`
}

// LoadFile reads a YAML registry description from path.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("liveserver: read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("liveserver: %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a registry from YAML. The default id must name one of the
// listed servers.
func Parse(data []byte) (*Registry, error) {
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return cfg.Registry()
}

// Registry validates cfg and builds the registry it describes.
func (cfg FileConfig) Registry() (*Registry, error) {
	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("no servers configured")
	}

	servers := make(map[string]LiveServer, len(cfg.Servers))
	order := make([]string, 0, len(cfg.Servers))
	for i, sc := range cfg.Servers {
		if sc.ID == "" || sc.RTMPDomain == "" || sc.ControlDomain == "" {
			return nil, fmt.Errorf("server %d: id, rtmp_domain and control_domain are required", i)
		}
		if _, dup := servers[sc.ID]; dup {
			return nil, fmt.Errorf("server %q listed twice", sc.ID)
		}
		servers[sc.ID] = New(sc.ID, sc.RTMPDomain, sc.ControlDomain)
		order = append(order, sc.ID)
	}

	def, ok := servers[cfg.Default]
	if !ok {
		return nil, fmt.Errorf("default server %q is not listed", cfg.Default)
	}

	reg := NewRegistry(def)
	for _, id := range order {
		reg.Add(servers[id])
	}
	return reg, nil
}
