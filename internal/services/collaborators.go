package services

import (
	"context"
	"errors"
	"os"
)

// Scaffold is a generated application source tree on local disk.
type Scaffold struct {
	Dir string
}

// Remove deletes the scaffold directory.
func (s *Scaffold) Remove() error {
	if s == nil || s.Dir == "" {
		return nil
	}
	return os.RemoveAll(s.Dir)
}

// Generator turns a prompt into a scaffold. Implementations must be safe for
// concurrent use and give every call its own output directory.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Scaffold, error)
}

// Publisher provisions a hosting site for a scaffold and returns its public
// URL. Calls are not idempotent: retrying may create a second remote site.
//
// The scaffold is uploaded as unbuilt source; no build step runs. Its
// index.html carries a static rendering of the app so the site shows
// content without one, and the React bundle takes over once built.
type Publisher interface {
	Publish(ctx context.Context, scaffold *Scaffold, siteName string) (string, error)
}

var ErrInvalidPrompt = errors.New("prompt is required")

// GenerationError reports a Generator failure.
type GenerationError struct {
	Msg string
	Err error
}

func (e *GenerationError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "code generation failed"
}

func (e *GenerationError) Unwrap() error { return e.Err }

const (
	StagePackage    = "package"
	StageCreateSite = "create_site"
	StageDeploy     = "deploy"
)

// PublishError reports a Publisher failure and the stage it happened in.
type PublishError struct {
	Stage string
	Msg   string
	Err   error
}

func (e *PublishError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "publish failed"
}

func (e *PublishError) Unwrap() error { return e.Err }
