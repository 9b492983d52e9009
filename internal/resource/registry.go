package resource

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"meshgate/internal/utils"

	"gopkg.in/yaml.v3"
)

// Category is the resource class an address points into
type Category int

const (
	CategoryNone Category = iota
	CategorySensors
	CategoryGroups
	CategoryLights
	CategoryConfig
)

var categoryNames = map[Category]string{
	CategorySensors: "sensors",
	CategoryGroups:  "groups",
	CategoryLights:  "lights",
	CategoryConfig:  "config",
}

func (c Category) String() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return "none"
}

// ParseCategory maps a category name (without slash) to its Category
func ParseCategory(name string) Category {
	for c, n := range categoryNames {
		if n == name {
			return c
		}
	}
	return CategoryNone
}

// CategoryFromAddress classifies an address by its prefix
func CategoryFromAddress(address string) Category {
	switch {
	case strings.HasPrefix(address, "/sensors"):
		return CategorySensors
	case strings.HasPrefix(address, "/config"):
		return CategoryConfig
	case strings.HasPrefix(address, "/groups"):
		return CategoryGroups
	case strings.HasPrefix(address, "/lights"):
		return CategoryLights
	}
	return CategoryNone
}

// InstanceScoped reports whether addresses of the category carry a resource id
func (c Category) InstanceScoped() bool {
	return c == CategorySensors || c == CategoryGroups || c == CategoryLights
}

var ErrUnknownAttribute = errors.New("unknown resource attribute")

// Descriptor describes one attribute suffix of a category
type Descriptor struct {
	Category Category
	Suffix   string
	Kind     Kind
}

// Address describes the parts of a resolved address
type Address struct {
	Category Category
	ID       string
	Suffix   string
}

// SplitAddress splits "/sensors/1/state/buttonevent" into its parts.
// Config addresses keep the whole path as suffix ("config/localtime").
func SplitAddress(address string) Address {
	a := Address{Category: CategoryFromAddress(address)}
	parts := utils.SplitPath(address)
	switch {
	case a.Category.InstanceScoped():
		if len(parts) > 1 {
			a.ID = parts[1]
		}
		if len(parts) > 2 {
			a.Suffix = strings.Join(parts[2:], "/")
		}
	case a.Category == CategoryConfig:
		a.Suffix = strings.Join(parts, "/")
	}
	return a
}

// Registry holds the known attribute descriptors
type Registry struct {
	mu    sync.RWMutex
	items map[Category]map[string]Descriptor
}

// NewRegistry creates a registry with the built-in descriptors
func NewRegistry() *Registry {
	r := &Registry{items: make(map[Category]map[string]Descriptor)}
	for _, d := range builtinDescriptors {
		r.Add(d)
	}
	return r
}

var builtinDescriptors = []Descriptor{
	{CategorySensors, "state/buttonevent", KindNumber},
	{CategorySensors, "state/presence", KindBool},
	{CategorySensors, "state/temperature", KindNumber},
	{CategorySensors, "state/humidity", KindNumber},
	{CategorySensors, "state/lightlevel", KindNumber},
	{CategorySensors, "state/daylight", KindBool},
	{CategorySensors, "state/dark", KindBool},
	{CategorySensors, "state/open", KindBool},
	{CategorySensors, "state/status", KindNumber},
	{CategorySensors, "state/flag", KindBool},
	{CategorySensors, "state/lastupdated", KindString},
	{CategorySensors, "config/on", KindBool},
	{CategorySensors, "config/reachable", KindBool},
	{CategorySensors, "config/battery", KindNumber},
	{CategoryLights, "state/on", KindBool},
	{CategoryLights, "state/bri", KindNumber},
	{CategoryLights, "state/reachable", KindBool},
	{CategoryGroups, "state/any_on", KindBool},
	{CategoryGroups, "state/all_on", KindBool},
	{CategoryGroups, "action/on", KindBool},
	{CategoryGroups, "action/bri", KindNumber},
	{CategoryConfig, "config/localtime", KindString},
	{CategoryConfig, "config/utc", KindString},
}

// Add registers or replaces a descriptor
func (r *Registry) Add(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.items[d.Category]
	if !ok {
		m = make(map[string]Descriptor)
		r.items[d.Category] = m
	}
	m[d.Suffix] = d
}

// Resolve looks up the descriptor addressed by a full resource address
func (r *Registry) Resolve(address string) (Descriptor, bool) {
	a := SplitAddress(address)
	if a.Category == CategoryNone || a.Suffix == "" {
		return Descriptor{}, false
	}
	if a.Category.InstanceScoped() && a.ID == "" {
		return Descriptor{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.items[a.Category][a.Suffix]
	return d, ok
}

type descriptorFile struct {
	Descriptors []struct {
		Category string `yaml:"category"`
		Suffix   string `yaml:"suffix"`
		Kind     string `yaml:"kind"`
	} `yaml:"descriptors"`
}

// LoadFile extends the registry with descriptors from a YAML file
func (r *Registry) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return r.Load(data)
}

// Load extends the registry with descriptors from YAML data
func (r *Registry) Load(data []byte) (int, error) {
	var f descriptorFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("parse descriptors: %w", err)
	}
	for i, d := range f.Descriptors {
		c := ParseCategory(d.Category)
		if c == CategoryNone {
			return i, fmt.Errorf("descriptor %d: unknown category %q", i, d.Category)
		}
		k, err := ParseKind(d.Kind)
		if err != nil {
			return i, fmt.Errorf("descriptor %d: %w", i, err)
		}
		if d.Suffix == "" {
			return i, fmt.Errorf("descriptor %d: empty suffix", i)
		}
		r.Add(Descriptor{Category: c, Suffix: d.Suffix, Kind: k})
	}
	return len(f.Descriptors), nil
}
