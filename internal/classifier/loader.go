package classifier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

var ErrArtifactNotFound = errors.New("model artifact not found")

// maxArtifactSize bounds a single downloaded artifact.
const maxArtifactSize = 256 << 20

// Loader fetches raw model artifacts by location.
type Loader interface {
	Load(ctx context.Context, location string) ([]byte, error)
}

type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(location)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, location)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading artifact %s: %w", location, err)
	}
	return data, nil
}

type HTTPLoader struct {
	Client *http.Client
}

func (l HTTPLoader) Load(ctx context.Context, location string) ([]byte, error) {
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, location)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status fetching artifact: %d", resp.StatusCode)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize))
}

// LocationLoader sends http(s) locations to HTTP and everything else to the
// filesystem.
type LocationLoader struct {
	File FileLoader
	HTTP HTTPLoader
}

func NewLoader(client *http.Client) *LocationLoader {
	return &LocationLoader{HTTP: HTTPLoader{Client: client}}
}

func (l *LocationLoader) Load(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return l.HTTP.Load(ctx, location)
	}
	return l.File.Load(ctx, location)
}
