package iaszone

import (
	"fmt"
	"os"
	"sync"

	"meshgate/internal/zcl"

	"gopkg.in/yaml.v3"
)

type nodeKey struct {
	ieee     uint64
	endpoint uint8
}

// SensorIndex maps a node address and endpoint to a sensor id
type SensorIndex struct {
	mu    sync.RWMutex
	nodes map[nodeKey]string
}

func NewSensorIndex() *SensorIndex {
	return &SensorIndex{nodes: make(map[nodeKey]string)}
}

func (s *SensorIndex) Add(ieee uint64, endpoint uint8, sensorID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[nodeKey{ieee, endpoint}] = sensorID
}

func (s *SensorIndex) Lookup(ieee uint64, endpoint uint8) (string, bool) {
	if s == nil {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodes[nodeKey{ieee, endpoint}]
	return id, ok
}

type indexFile struct {
	Sensors []struct {
		IEEE     string `yaml:"ieee"`
		Endpoint uint8  `yaml:"endpoint"`
		Sensor   string `yaml:"sensor"`
	} `yaml:"sensors"`
}

// LoadIndex reads a YAML sensor index file
func LoadIndex(path string) (*SensorIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseIndex(data)
}

// ParseIndex parses YAML of the form
//
//	sensors:
//	  - {ieee: "0x00158d0001a2b3c4", endpoint: 1, sensor: "5"}
func ParseIndex(data []byte) (*SensorIndex, error) {
	var f indexFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sensor index: %w", err)
	}
	idx := NewSensorIndex()
	for i, s := range f.Sensors {
		ieee, err := zcl.ParseIEEE(s.IEEE)
		if err != nil {
			return nil, fmt.Errorf("sensor index entry %d: %w", i, err)
		}
		if s.Sensor == "" {
			return nil, fmt.Errorf("sensor index entry %d: missing sensor id", i)
		}
		idx.Add(ieee, s.Endpoint, s.Sensor)
	}
	return idx, nil
}
