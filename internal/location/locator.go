// Package location obtains a position fix for an alert.
package location

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mr1hm/go-lifeline/internal/models"
)

var ErrNoProvider = errors.New("no location provider configured")

// Locator produces a single position fix. Implementations must honor ctx.
type Locator interface {
	Fix(ctx context.Context) (models.Coordinates, error)
}

// Static always reports the same coordinates, e.g. a fixed installation.
type Static struct {
	Coords models.Coordinates
}

func (s Static) Fix(ctx context.Context) (models.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return models.Coordinates{}, err
	}
	return s.Coords, nil
}

// Unavailable never produces a fix.
type Unavailable struct{}

func (Unavailable) Fix(ctx context.Context) (models.Coordinates, error) {
	return models.Coordinates{}, ErrNoProvider
}

// Command runs a platform helper (termux-location, gpspipe wrappers, ...)
// that prints a JSON object with latitude and longitude fields.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}
	return Command{Name: fields[0], Args: fields[1:]}
}

func (c Command) Fix(ctx context.Context) (models.Coordinates, error) {
	if c.Name == "" {
		return models.Coordinates{}, ErrNoProvider
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return models.Coordinates{}, ctx.Err()
		}
		return models.Coordinates{}, fmt.Errorf("location command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return parseFix(stdout.Bytes())
}

func parseFix(data []byte) (models.Coordinates, error) {
	var fix struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(data, &fix); err != nil {
		return models.Coordinates{}, fmt.Errorf("error decoding location fix: %w", err)
	}
	if fix.Latitude == nil || fix.Longitude == nil {
		return models.Coordinates{}, errors.New("location fix is missing coordinates")
	}

	c := models.Coordinates{Latitude: *fix.Latitude, Longitude: *fix.Longitude}
	if err := Validate(c); err != nil {
		return models.Coordinates{}, err
	}
	return c, nil
}

func Validate(c models.Coordinates) error {
	if c.Latitude < -90 || c.Latitude > 90 {
		return fmt.Errorf("latitude out of range: %v", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return fmt.Errorf("longitude out of range: %v", c.Longitude)
	}
	return nil
}
