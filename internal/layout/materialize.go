package layout

import (
	"context"
	"fmt"

	"github.com/samcharles93/convbench/internal/backend"
	"github.com/samcharles93/convbench/internal/hostbuf"
	"github.com/samcharles93/convbench/internal/logger"
)

// hostSource is a transient host buffer holding a tensor file.
type hostSource interface {
	Bytes() []byte
	Len() int
	Close() error
}

// openSource is replaced in tests to observe buffer release.
var openSource = func(path string) (hostSource, error) {
	b, err := hostbuf.Open(path)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Materialize allocates the image described by l. When source names a file,
// its contents are loaded into a transient buffer, copied into the image at
// creation time and released before returning, on success or failure. An
// empty source allocates the image uninitialised.
func Materialize(ctx context.Context, s backend.Session, l ImageLayout, source string) (backend.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx).With("role", l.Role.String())

	if source == "" {
		img, err := s.CreateImage(l.Desc(false), nil)
		if err != nil {
			return nil, backend.Failure("create "+l.Role.String()+" image", err)
		}
		log.Debug("allocated uninitialised image", "shape", l.PhysicalShape())
		return img, nil
	}

	buf, err := openSource(source)
	if err != nil {
		return nil, err
	}
	defer func() { _ = buf.Close() }()

	if buf.Len() != l.ByteSize() {
		return nil, fmt.Errorf("%w: %s holds %d bytes, %s layout %v needs %d",
			hostbuf.ErrSourceUnavailable, source, buf.Len(), l.Role, l.PhysicalShape(), l.ByteSize())
	}

	img, err := s.CreateImage(l.Desc(true), buf.Bytes())
	if err != nil {
		return nil, backend.Failure("create "+l.Role.String()+" image", err)
	}
	log.Debug("initialised image from source", "source", source, "bytes", buf.Len(), "shape", l.PhysicalShape())
	return img, nil
}
