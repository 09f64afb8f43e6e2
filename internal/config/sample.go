package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# lighthouse-preview configuration.
# ${HOST} and ${PORT} in serve_command expand to the server binding.
`

// Sample renders the default configuration as YAML.
func Sample() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(sampleHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(Default()); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSample writes the sample configuration to path, refusing to
// overwrite an existing file unless force is set.
func WriteSample(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	content, err := Sample()
	if err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

// MarshalYAML writes durations in their string form so the sample stays
// readable; viper parses either form back.
func (s ServerConfig) MarshalYAML() (any, error) {
	type server struct {
		Port          int    `yaml:"port"`
		HostInterface string `yaml:"host_interface"`
		HostPort      int    `yaml:"host_port,omitempty"`
		Name          string `yaml:"name,omitempty"`
		ReadyTimeout  string `yaml:"ready_timeout,omitempty"`
		StopTimeout   string `yaml:"stop_timeout,omitempty"`
	}
	out := server{
		Port:          s.Port,
		HostInterface: s.HostInterface,
		HostPort:      s.HostPort,
		Name:          s.Name,
	}
	if s.ReadyTimeout > 0 {
		out.ReadyTimeout = s.ReadyTimeout.String()
	}
	if s.StopTimeout > 0 {
		out.StopTimeout = s.StopTimeout.String()
	}
	return out, nil
}
