package artifact

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Artifact is a completed backup file and the name it was produced under.
type Artifact struct {
	Name      Name
	CreatedAt time.Time
	Path      string
	Size      int64
}

func NewFromFS(path string, name Name) (Artifact, error) {
	if err := name.Validate(); err != nil {
		return Artifact{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("could not stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return Artifact{}, errors.New("not a regular file")
	}

	return Artifact{
		Name:      name,
		CreatedAt: info.ModTime(),
		Path:      path,
		Size:      info.Size(),
	}, nil
}

func (a Artifact) LogicalName() string {
	return a.Name.Logical
}

func (a Artifact) Extension() string {
	return a.Name.Extension
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (a Artifact) MarshalZerologObject(e *zerolog.Event) {
	e.Str("path", a.Path)
	e.Str("logical", a.Name.Logical)
	e.Str("extension", a.Name.Extension)
	e.Str("pattern", a.Name.Pattern)
	e.Int64("size", a.Size)
	e.Time("created_at", a.CreatedAt)
}
