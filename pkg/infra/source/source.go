package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/option"

	"github.com/m-mizutani/hoist/pkg/domain/interfaces"
	"github.com/m-mizutani/hoist/pkg/domain/types"
)

const gcsScheme = "gs://"

// Opener resolves asset arguments into sources. An argument is a local path
// or a gs://bucket/object URL, optionally followed by "#name" to set the
// asset name.
type Opener struct {
	gcsOptions []option.ClientOption

	mu  sync.Mutex
	gcs *storage.Client
}

// Option is a functional option for Opener
type Option func(*Opener)

// WithGCSClientOptions sets options for the Cloud Storage client
func WithGCSClientOptions(opts ...option.ClientOption) Option {
	return func(o *Opener) {
		o.gcsOptions = append(o.gcsOptions, opts...)
	}
}

// WithGCSClient sets the Cloud Storage client to use
func WithGCSClient(client *storage.Client) Option {
	return func(o *Opener) {
		o.gcs = client
	}
}

func New(opts ...Option) *Opener {
	o := &Opener{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Close releases the Cloud Storage client if one was created
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.gcs == nil {
		return nil
	}
	err := o.gcs.Close()
	o.gcs = nil
	return err
}

// OpenAll resolves every argument. Any missing source or repeated asset name
// fails the whole set, before anything is sent to the remote.
func (o *Opener) OpenAll(ctx context.Context, args []string) ([]interfaces.AssetSource, error) {
	sources := make([]interfaces.AssetSource, 0, len(args))
	seen := make(map[string]string, len(args))

	for _, arg := range args {
		src, err := o.Open(ctx, arg)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[src.Name()]; ok {
			return nil, goerr.New("asset name is given more than once",
				goerr.V("asset", src.Name()),
				goerr.V("first", prev),
				goerr.V("second", arg),
				goerr.T(types.ErrTagFatal))
		}
		seen[src.Name()] = arg
		sources = append(sources, src)
	}

	return sources, nil
}

// Open resolves a single argument
func (o *Opener) Open(ctx context.Context, arg string) (interfaces.AssetSource, error) {
	location, name := splitArg(arg)
	if location == "" {
		return nil, goerr.New("asset path is empty",
			goerr.V("arg", arg),
			goerr.T(types.ErrTagFatal))
	}
	if strings.Contains(name, "/") {
		return nil, goerr.New("asset name must not contain '/'",
			goerr.V("arg", arg),
			goerr.V("name", name),
			goerr.T(types.ErrTagFatal))
	}

	var (
		src interfaces.AssetSource
		err error
	)
	if strings.HasPrefix(location, gcsScheme) {
		src, err = o.openGCS(ctx, location, name)
	} else {
		src, err = openFile(location, name)
	}
	if err != nil {
		return nil, err
	}

	ctxlog.From(ctx).Debug("Asset source resolved",
		"location", location,
		"asset", src.Name(),
		"size", src.Size())
	return src, nil
}

// splitArg splits "location#name". The name is empty when not given.
func splitArg(arg string) (location, name string) {
	if i := strings.LastIndex(arg, "#"); i >= 0 {
		return arg[:i], arg[i+1:]
	}
	return arg, ""
}

// File is an asset read from the local filesystem
type File struct {
	path string
	name string
	size int64
}

func openFile(p, name string) (*File, error) {
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(err, "asset file does not exist",
				goerr.V("path", p),
				goerr.T(types.ErrTagFatal))
		}
		return nil, goerr.Wrap(err, "failed to stat asset file",
			goerr.V("path", p),
			goerr.T(types.ErrTagFatal))
	}
	if !info.Mode().IsRegular() {
		return nil, goerr.New("asset path is not a regular file",
			goerr.V("path", p),
			goerr.V("mode", info.Mode().String()),
			goerr.T(types.ErrTagFatal))
	}

	if name == "" {
		name = filepath.Base(p)
	}
	return &File{path: p, name: name, size: info.Size()}, nil
}

func (f *File) Name() string { return f.name }
func (f *File) Size() int64  { return f.size }

// Open opens the file. It fails if the file changed size since it was resolved.
func (f *File) Open(ctx context.Context) (io.ReadCloser, error) {
	fd, err := os.Open(f.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open asset file",
			goerr.V("path", f.path),
			goerr.T(types.ErrTagFatal))
	}

	info, err := fd.Stat()
	if err != nil {
		_ = fd.Close()
		return nil, goerr.Wrap(err, "failed to stat asset file",
			goerr.V("path", f.path),
			goerr.T(types.ErrTagFatal))
	}
	if info.Size() != f.size {
		_ = fd.Close()
		return nil, goerr.New("asset file changed size",
			goerr.V("path", f.path),
			goerr.V("expected", f.size),
			goerr.V("actual", info.Size()),
			goerr.T(types.ErrTagFatal))
	}

	return fd, nil
}

// GCSObject is an asset read from Cloud Storage
type GCSObject struct {
	handle *storage.ObjectHandle
	url    string
	name   string
	size   int64
}

func (o *Opener) client(ctx context.Context) (*storage.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gcs != nil {
		return o.gcs, nil
	}

	client, err := storage.NewClient(ctx, o.gcsOptions...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Cloud Storage client", goerr.T(types.ErrTagFatal))
	}
	o.gcs = client
	return client, nil
}

func parseGCSURL(u string) (bucket, object string, err error) {
	bucket, object, _ = strings.Cut(strings.TrimPrefix(u, gcsScheme), "/")
	if bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", goerr.New("invalid Cloud Storage URL, expected gs://bucket/object",
			goerr.V("url", u),
			goerr.T(types.ErrTagFatal))
	}
	return bucket, object, nil
}

func (o *Opener) openGCS(ctx context.Context, u, name string) (*GCSObject, error) {
	bucket, object, err := parseGCSURL(u)
	if err != nil {
		return nil, err
	}

	client, err := o.client(ctx)
	if err != nil {
		return nil, err
	}

	handle := client.Bucket(bucket).Object(object)
	attrs, err := handle.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
			return nil, goerr.Wrap(err, "asset object does not exist",
				goerr.V("url", u),
				goerr.T(types.ErrTagFatal))
		}
		return nil, goerr.Wrap(err, "failed to get asset object attributes",
			goerr.V("url", u),
			goerr.T(types.ErrTagFatal))
	}

	if name == "" {
		name = path.Base(object)
	}
	// Pin the generation so every attempt uploads the same bytes
	return &GCSObject{
		handle: handle.Generation(attrs.Generation),
		url:    u,
		name:   name,
		size:   attrs.Size,
	}, nil
}

func (g *GCSObject) Name() string { return g.name }
func (g *GCSObject) Size() int64  { return g.size }

func (g *GCSObject) Open(ctx context.Context) (io.ReadCloser, error) {
	r, err := g.handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, goerr.Wrap(err, "asset object was removed",
				goerr.V("url", g.url),
				goerr.T(types.ErrTagFatal))
		}
		return nil, goerr.Wrap(err, "failed to read asset object",
			goerr.V("url", g.url),
			goerr.T(types.ErrTagTransient))
	}
	return r, nil
}
