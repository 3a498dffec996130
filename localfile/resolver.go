package localfile

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/pathutil"
	"github.com/bitrise-io/go-utils/ziputil"
	"github.com/bmatcuk/doublestar/v4"
)

const (
	fileScheme = "file://"
	globChars  = "*?[{"
)

// Downloader fetches remote sources.
type Downloader interface {
	Download(ctx context.Context, destination, source string) error
}

// Resolver resolves a source given by the user to a local file. A source can be:
//   - a local path, optionally with the file:// scheme
//   - an http(s) URL, downloaded to a temporary directory
//   - a glob pattern (including ** patterns) matching exactly one path
//   - a directory, which is zipped into a temporary archive
//
// Temporary directories live until Cleanup is called.
type Resolver struct {
	downloader   Downloader
	pathProvider pathutil.PathProvider
	pathModifier pathutil.PathModifier
	pathChecker  pathutil.PathChecker
	zipDir       func(sourceDir, destinationZip string) error
	logger       log.Logger

	mu       sync.Mutex
	tempDirs []string
}

// NewResolver ...
func NewResolver(downloader Downloader, pathProvider pathutil.PathProvider, pathModifier pathutil.PathModifier, pathChecker pathutil.PathChecker, logger log.Logger) *Resolver {
	return &Resolver{
		downloader:   downloader,
		pathProvider: pathProvider,
		pathModifier: pathModifier,
		pathChecker:  pathChecker,
		zipDir:       zipDirContent,
		logger:       logger,
	}
}

// Resolve ...
func (r *Resolver) Resolve(ctx context.Context, source string) (*File, error) {
	if source == "" {
		return nil, fmt.Errorf("no file given")
	}

	if isRemote(source) {
		pth, err := r.download(ctx, source)
		if err != nil {
			return nil, err
		}
		return NewFile(pth)
	}

	pth := strings.TrimPrefix(source, fileScheme)
	if strings.ContainsAny(pth, globChars) {
		match, err := r.glob(pth)
		if err != nil {
			return nil, err
		}
		pth = match
	}

	absPth, err := r.pathModifier.AbsPath(pth)
	if err != nil {
		return nil, err
	}

	exists, err := r.pathChecker.IsPathExists(absPth)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%s does not exist", absPth)
	}

	info, err := os.Stat(absPth)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		archive, err := r.zip(absPth)
		if err != nil {
			return nil, err
		}
		return NewFile(archive)
	}

	return NewFile(absPth)
}

func (r *Resolver) download(ctx context.Context, source string) (string, error) {
	parsedURL, err := url.Parse(source)
	if err != nil {
		return "", err
	}
	fileName := filepath.Base(parsedURL.Path)
	if fileName == "." || fileName == "/" {
		return "", fmt.Errorf("no file name in %s", source)
	}

	tmpDir, err := r.createTempDir("model-download")
	if err != nil {
		return "", err
	}

	localPath := filepath.Join(tmpDir, fileName)
	r.logger.Printf("Downloading %s", source)
	if err := r.downloader.Download(ctx, localPath, source); err != nil {
		return "", fmt.Errorf("failed to download file from %s: %w", source, err)
	}

	return localPath, nil
}

func (r *Resolver) glob(path string) (string, error) {
	base, pattern := doublestar.SplitPattern(path)
	absBase, err := r.pathModifier.AbsPath(base)
	if err != nil {
		return "", err
	}

	matches, err := doublestar.Glob(os.DirFS(absBase), pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %s: %w", path, err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no file matches %s", path)
	case 1:
		r.logger.Debugf("%s matched %s", path, matches[0])
		return filepath.Join(absBase, matches[0]), nil
	default:
		return "", fmt.Errorf("%s matches %d files (%s), exactly one is needed", path, len(matches), strings.Join(matches, ", "))
	}
}

func (r *Resolver) zip(dir string) (string, error) {
	tmpDir, err := r.createTempDir("model-archive")
	if err != nil {
		return "", err
	}

	archive := filepath.Join(tmpDir, filepath.Base(dir)+".zip")
	r.logger.Printf("Compressing %s", dir)
	if err := r.zipDir(dir, archive); err != nil {
		return "", fmt.Errorf("compress %s: %w", dir, err)
	}

	return archive, nil
}

func (r *Resolver) createTempDir(prefix string) (string, error) {
	tmpDir, err := r.pathProvider.CreateTempDir(prefix)
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}

	r.mu.Lock()
	r.tempDirs = append(r.tempDirs, tmpDir)
	r.mu.Unlock()

	return tmpDir, nil
}

// Cleanup removes the downloaded files and archives created by Resolve. Files returned by
// Resolve must not be used afterwards.
func (r *Resolver) Cleanup() error {
	r.mu.Lock()
	tempDirs := r.tempDirs
	r.tempDirs = nil
	r.mu.Unlock()

	var errs []error
	for _, dir := range tempDirs {
		r.logger.Debugf("Removing %s", dir)
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func zipDirContent(sourceDir, destinationZip string) error {
	return ziputil.ZipDir(sourceDir, destinationZip, true)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}
