package report

import (
	"context"
	"io"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pure-golang/report-mailer/storage"
)

// ObjectScheme prefixes report sources kept in object storage.
const ObjectScheme = "s3://"

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Loader returns the full HTML content of a report source.
type Loader interface {
	Load(ctx context.Context, source string) (string, error)
}

// ParseObjectSource splits "s3://bucket/key". ok is false for anything else,
// including a missing bucket or key.
func ParseObjectSource(source string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(source, ObjectScheme)
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}

// DateSource returns the part of source searched for a date: the object key
// for s3:// sources, the path as given otherwise.
func DateSource(source string) string {
	if _, key, ok := ParseObjectSource(source); ok {
		return key
	}
	return source
}

// CheckSource verifies that source can be loaded before recipients and
// content are resolved. Local paths must name a regular file. Object sources
// are checked for form only; a missing object surfaces on Load.
func CheckSource(source string) error {
	if strings.HasPrefix(source, ObjectScheme) {
		if _, _, ok := ParseObjectSource(source); !ok {
			return invalidObjectSource(source)
		}
		return nil
	}
	return checkFile(source)
}

func checkFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return &Error{Code: CodeFileNotFound, Message: "HTML file not found: " + path, Source: path, Err: err}
	case err != nil:
		return &Error{Code: CodeFileRead, Message: "failed to stat HTML file", Source: path, Err: err}
	case !info.Mode().IsRegular():
		return &Error{Code: CodeFileNotFound, Message: "HTML file not found: " + path, Source: path}
	}
	return nil
}

func invalidObjectSource(source string) error {
	return &Error{Code: CodeFileRead, Message: "invalid object source, want s3://bucket/key", Source: source}
}

// FileLoader reads reports from the local filesystem.
type FileLoader struct{}

// Load reads the whole file. A missing path or one that is not a regular
// file is CodeFileNotFound, every other failure CodeFileRead.
func (FileLoader) Load(ctx context.Context, path string) (string, error) {
	_, span := tracer.Start(ctx, "Report.LoadFile")
	defer span.End()
	span.SetAttributes(attribute.String("report.source", path))

	if err := checkFile(path); err != nil {
		return "", failLoad(span, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", failLoad(span, &Error{Code: CodeFileRead, Message: "failed to read HTML file", Source: path, Err: err})
	}

	return decode(span, path, data)
}

// ObjectLoader reads s3://bucket/key sources.
type ObjectLoader struct {
	Storage storage.Storage
}

func (l *ObjectLoader) Load(ctx context.Context, source string) (string, error) {
	ctx, span := tracer.Start(ctx, "Report.LoadObject")
	defer span.End()
	span.SetAttributes(attribute.String("report.source", source))

	bucket, key, ok := ParseObjectSource(source)
	if !ok {
		return "", failLoad(span, invalidObjectSource(source))
	}

	rc, _, err := l.Storage.Get(ctx, bucket, key)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", failLoad(span, &Error{Code: CodeFileNotFound, Message: "HTML file not found: " + source, Source: source, Err: err})
		}
		return "", failLoad(span, &Error{Code: CodeFileRead, Message: "failed to open HTML object", Source: source, Err: err})
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return "", failLoad(span, &Error{Code: CodeFileRead, Message: "failed to read HTML object", Source: source, Err: err})
	}

	return decode(span, source, data)
}

// SourceLoader routes s3:// sources to object storage and everything else to
// the filesystem. Storage is opened only when an object source is loaded.
type SourceLoader struct {
	Files       Loader
	OpenStorage func(ctx context.Context) (storage.Storage, error)
}

func (l *SourceLoader) Load(ctx context.Context, source string) (string, error) {
	if !strings.HasPrefix(source, ObjectScheme) {
		files := l.Files
		if files == nil {
			files = FileLoader{}
		}
		return files.Load(ctx, source)
	}

	if l.OpenStorage == nil {
		return "", &Error{Code: CodeFileRead, Message: "object storage is not configured", Source: source}
	}
	st, err := l.OpenStorage(ctx)
	if err != nil {
		return "", &Error{Code: CodeFileRead, Message: "failed to open object storage", Source: source, Err: err}
	}
	defer st.Close()

	return (&ObjectLoader{Storage: st}).Load(ctx, source)
}

func decode(span trace.Span, source string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", failLoad(span, &Error{Code: CodeFileRead, Message: "failed to decode HTML", Source: source, Err: errInvalidUTF8})
	}
	span.SetStatus(codes.Ok, "")
	return string(data), nil
}

func failLoad(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
