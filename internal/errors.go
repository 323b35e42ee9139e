package internal

import (
	"errors"
	"fmt"
	"time"
)

type Warning string

func (warning Warning) Error() string { return string(warning) }

func (Warning) Is(err error) bool {
	_, ok := err.(Warning)
	return ok
}

func IsWarning(err error) bool {
	return errors.Is(err, Warning(""))
}

// ConfigError is returned when deployment configuration or required environment is invalid.
// It is always raised before the cluster is contacted.
type ConfigError struct {
	Msg string
}

func (err ConfigError) Error() string { return "invalid config: " + err.Msg }

func ConfigErrorf(format string, args ...any) ConfigError {
	return ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// TimeoutError is returned when a deployment did not settle within its polling budget.
type TimeoutError struct {
	Name    string
	Elapsed time.Duration
	Reason  string
}

func (err TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s for %s within %s", err.Reason, err.Name, err.Elapsed)
}

// DeploymentError is a terminal failure reported by the cluster. Detail carries the
// diagnostic the cluster gave us: container logs or the image pull message.
type DeploymentError struct {
	Name   string
	Reason string
	Detail string
}

func (err DeploymentError) Error() string {
	if err.Detail == "" {
		return err.Reason
	}
	return err.Reason + ": " + err.Detail
}

type NotFoundError struct {
	Kind string
	Name string
}

func (err NotFoundError) Error() string {
	return fmt.Sprintf("could not find %s for %s", err.Kind, err.Name)
}

func IsNotFound(err error) bool {
	var notFound NotFoundError
	return errors.As(err, &notFound)
}
