package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tclaveria/concierge/pkg/models"
)

// catalogFile is the YAML structure of a capability catalog.
type catalogFile struct {
	Capabilities []models.CapabilityDescriptor `yaml:"capabilities"`
}

// LoadCatalog parses a capability catalog YAML file.
func LoadCatalog(path string) ([]models.CapabilityDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	if len(file.Capabilities) == 0 {
		return nil, fmt.Errorf("catalog %s declares no capabilities", path)
	}

	for i := range file.Capabilities {
		if err := file.Capabilities[i].Validate(); err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
	}

	return file.Capabilities, nil
}

// RegisterCatalog loads a catalog file and registers every descriptor.
func RegisterCatalog(r *Registry, path string) error {
	descriptors, err := LoadCatalog(path)
	if err != nil {
		return err
	}

	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return err
		}
	}

	return nil
}
