package container

import (
	"fmt"
)

// Engine is the container CLI driving every container-puppet run.
type Engine string

const (
	Docker Engine = "docker"
	Podman Engine = "podman"
)

// ConfigurationError reports an unusable container engine setup.
type ConfigurationError struct {
	Engine string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid container cli: %q (expected docker or podman)", e.Engine)
}

func ParseEngine(name string) (Engine, error) {
	switch e := Engine(name); e {
	case Docker, Podman:
		return e, nil
	default:
		return "", &ConfigurationError{Engine: name}
	}
}

// Path is the absolute path of the engine binary.
func (e Engine) Path() string {
	return "/usr/bin/" + string(e)
}

// SupportsLogFile reports whether the engine can write per container log
// files through the k8s-file log driver.
func (e Engine) SupportsLogFile() bool {
	return e == Podman
}

// LeaksStorage reports whether removed containers can leave storage
// metadata behind that needs an extra `rm --storage`.
func (e Engine) LeaksStorage() bool {
	return e == Podman
}
