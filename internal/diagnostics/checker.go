// Package diagnostics verifies the external tools and paths the pipeline depends on.
package diagnostics

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ekisa-team/voxpipe/internal/model"
)

// Tool is an external program the pipeline spawns.
type Tool interface {
	Name() string
	Available() (string, error)
}

// ModelSource lists the models available to the transcriber.
type ModelSource interface {
	Dir() string
	List() []model.Model
}

// Checker validates external tools and required filesystem paths.
type Checker struct {
	models     ModelSource
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
	uploadDir  string
	tools      []Tool
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker(models ModelSource, uploadDir string, tools ...Tool) *Checker {
	return &Checker{
		models:     models,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
		uploadDir:  uploadDir,
		tools:      tools,
	}
}

// Run executes all checks and returns a combined report.
func (c *Checker) Run() Report {
	items := make([]Item, 0, len(c.tools)+2)
	for _, tool := range c.tools {
		items = append(items, c.checkTool(tool))
	}
	items = append(items, c.checkModels(), c.checkUploadDir())

	hasFailures := false
	for _, item := range items {
		if item.Status == StatusFail {
			hasFailures = true
			break
		}
	}

	return Report{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies an executable can be resolved.
func (c *Checker) checkTool(tool Tool) Item {
	item := Item{
		ID:   "tool_" + tool.Name(),
		Name: tool.Name(),
	}

	path, err := tool.Available()
	if err != nil {
		item.Status = StatusFail
		item.Message = err.Error()
		item.Hint = "Install it or point the configuration at the binary."
		return item
	}

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Found at %s", path)
	return item
}

// checkModels requires at least one model file in the models directory.
func (c *Checker) checkModels() Item {
	item := Item{
		ID:   "models",
		Name: "Models directory",
	}

	dir := c.models.Dir()
	if n := len(c.models.List()); n > 0 {
		item.Status = StatusPass
		item.Message = fmt.Sprintf("%d model(s) in %s", n, dir)
		return item
	}

	item.Status = StatusFail
	item.Message = fmt.Sprintf("No model files found in %s", dir)
	item.Hint = "Download a model with whisper.cpp/models/download-ggml-model.sh."
	return item
}

// checkUploadDir validates upload directory existence and write access.
func (c *Checker) checkUploadDir() Item {
	item := Item{
		ID:   "upload_dir",
		Name: "Upload directory",
	}

	if err := c.mkdirAll(c.uploadDir, 0o755); err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Cannot create upload directory: %s", c.uploadDir)
		if errors.Is(err, fs.ErrPermission) {
			item.Hint = "Choose a writable location or adjust filesystem permissions."
		}
		return item
	}

	tmpFile, err := c.createTemp(c.uploadDir, ".write-check-*")
	if err != nil {
		item.Status = StatusFail
		item.Message = fmt.Sprintf("Upload directory is not writable: %s", c.uploadDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = StatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", c.uploadDir)
	return item
}
