// Package container reads and writes files of the training container layout
// which the platform prepares under /opt/ml.
//
//	/opt/ml
//	├── input
//	│   ├── config
//	│   │   ├── hyperparameters.json
//	│   │   ├── inputdataconfig.json
//	│   │   └── resourceconfig.json
//	│   └── data
//	│       └── <channel>/...
//	├── model
//	└── output
//	    └── failure
package container

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultRoot is where the platform mounts the container layout.
const DefaultRoot = "/opt/ml"

const (
	ChannelTraining   = "training"
	ChannelValidation = "validation"
)

type Layout struct {
	root string
}

// New returns Layout rooted at root. Empty root means DefaultRoot.
func New(root string) Layout {
	if root == "" {
		root = DefaultRoot
	}
	return Layout{root: root}
}

func (l Layout) Root() string {
	return l.root
}

func (l Layout) configFile(name string) string {
	return filepath.Join(l.root, "input", "config", name)
}

// ChannelDir returns the directory where files of the input channel are placed.
func (l Layout) ChannelDir(channel string) string {
	return filepath.Join(l.root, "input", "data", channel)
}

// ModelDir is the directory whose content is uploaded as the model artifact.
func (l Layout) ModelDir() string {
	return filepath.Join(l.root, "model")
}

// ChannelFile returns the first file in the channel directory, in lexical order.
//
// Hidden files and directories are skipped.
// If there are no files, it returns an error wrapping os.ErrNotExist.
func (l Layout) ChannelFile(channel string) (string, error) {
	dir := l.ChannelDir(channel)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		return filepath.Join(dir, e.Name()), nil
	}
	return "", fmt.Errorf("%w: no files in channel %s (%s)", os.ErrNotExist, channel, dir)
}

func (l Layout) FailureFile() string {
	return filepath.Join(l.root, "output", "failure")
}

// Channel describes an input channel in inputdataconfig.json.
type Channel struct {
	ContentType        string `json:"ContentType,omitempty"`
	TrainingInputMode  string `json:"TrainingInputMode,omitempty"`
	S3DistributionType string `json:"S3DistributionType,omitempty"`
	RecordWrapperType  string `json:"RecordWrapperType,omitempty"`
}

// Resource is resourceconfig.json.
type Resource struct {
	CurrentHost          string   `json:"current_host"`
	Hosts                []string `json:"hosts"`
	NetworkInterfaceName string   `json:"network_interface_name,omitempty"`
}

func readJSON[T any](path string) (T, error) {
	var v T
	content, err := os.ReadFile(path)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(content, &v); err != nil {
		return v, err
	}
	return v, nil
}

// Hyperparameters reads hyperparameters.json.
//
// The platform passes all hyperparameters as strings. A missing file means no hyperparameters.
func (l Layout) Hyperparameters() (map[string]string, error) {
	hp, err := readJSON[map[string]string](l.configFile("hyperparameters.json"))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	if hp == nil {
		hp = map[string]string{}
	}
	return hp, nil
}

// InputDataConfig reads inputdataconfig.json.
func (l Layout) InputDataConfig() (map[string]Channel, error) {
	return readJSON[map[string]Channel](l.configFile("inputdataconfig.json"))
}

// ResourceConfig reads resourceconfig.json.
func (l Layout) ResourceConfig() (Resource, error) {
	return readJSON[Resource](l.configFile("resourceconfig.json"))
}

// WriteFailure writes the reason of failure, which the platform shows as the failure reason of the job.
func (l Layout) WriteFailure(reason string) error {
	dest := l.FailureFile()
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, []byte(reason), 0o644)
}
