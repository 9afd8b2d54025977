package pwmp

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pixelweather-go/types"
)

// ReleaseExt is the file extension of published images in a DirReleases.
const ReleaseExt = ".pwos"

// ErrNoSuchRelease is returned for versions that were never published.
var ErrNoSuchRelease = errors.New("no such release")

// MemReleases holds images in memory.
type MemReleases struct {
	mu     sync.Mutex
	images map[types.Version][]byte
}

func NewMemReleases() *MemReleases {
	return &MemReleases{images: make(map[types.Version][]byte)}
}

func (r *MemReleases) Publish(v types.Version, image []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images[v] = image
}

func (r *MemReleases) Latest() (types.Version, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best types.Version
	found := false
	for v := range r.images {
		if !found || best.Less(v) {
			best, found = v, true
		}
	}
	return best, found, nil
}

func (r *MemReleases) Image(v types.Version) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	img, ok := r.images[v]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRelease, v)
	}
	return img, nil
}

// DirReleases serves "<X.Y.Z>.pwos" files from a directory. The directory
// is rescanned on every call so images published while serving are seen.
type DirReleases struct {
	Dir string
}

func (d DirReleases) path(v types.Version) string {
	return filepath.Join(d.Dir, v.String()+ReleaseExt)
}

// Publish writes image as version v.
func (d DirReleases) Publish(v types.Version, image []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	tmp := d.path(v) + ".tmp"
	if err := os.WriteFile(tmp, image, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path(v))
}

func (d DirReleases) Latest() (types.Version, bool, error) {
	entries, err := os.ReadDir(d.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return types.Version{}, false, nil
	}
	if err != nil {
		return types.Version{}, false, err
	}
	var best types.Version
	found := false
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ReleaseExt)
		if !ok || e.IsDir() {
			continue
		}
		v, err := types.ParseVersion(name)
		if err != nil {
			continue
		}
		if !found || best.Less(v) {
			best, found = v, true
		}
	}
	return best, found, nil
}

func (d DirReleases) Image(v types.Version) ([]byte, error) {
	img, err := os.ReadFile(d.path(v))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchRelease, v)
	}
	return img, err
}
