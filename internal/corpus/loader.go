// Package corpus enumerates and reads the source documents of a build.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"
	"github.com/seanblong/ragpipe/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Skip records a file that was not turned into a document and why.
type Skip struct {
	Path string
	Err  error
}

// Result is the outcome of a corpus scan.
type Result struct {
	Documents []models.Document
	Skipped   []Skip
}

// ParseFailures counts skips caused by unreadable or undecodable files.
func (r Result) ParseFailures() int {
	n := 0
	for _, s := range r.Skipped {
		if errors.Is(s.Err, models.ErrParseFailure) {
			n++
		}
	}
	return n
}

// Loader reads every eligible file under Root, then under each of Extra.
type Loader struct {
	Root       string
	Extra      []string
	Recursive  bool
	Extensions []string
	Parsers    map[string]Parser
	Walker     FileSystemWalker
	FileReader FileReader
}

// New creates a Loader with the default walker, reader and parsers. Documents
// from extra directories follow those of root.
func New(root string, recursive bool, extensions []string, extra ...string) *Loader {
	return &Loader{
		Root:       root,
		Extra:      extra,
		Recursive:  recursive,
		Extensions: extensions,
		Parsers:    DefaultParsers(),
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// Load returns the documents under each root in turn, ordered within a root
// by their path relative to it. Files that cannot be read or decoded, and
// files with no text, are reported in Result.Skipped instead of failing the
// scan. A missing root fails the whole load.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	roots := append([]string{l.Root}, l.Extra...)
	for _, root := range roots {
		if fi, err := os.Stat(root); err != nil {
			return Result{}, fmt.Errorf("corpus root %s: %w", root, err)
		} else if !fi.IsDir() {
			return Result{}, fmt.Errorf("corpus root %s is not a directory", root)
		}
	}

	var res Result
	seen := make(map[string]string)
	for _, root := range roots {
		paths, err := l.scan(ctx, root)
		if err != nil {
			return Result{}, err
		}
		for _, path := range paths {
			doc, err := l.loadFile(root, path)
			if err != nil {
				if errors.Is(err, models.ErrEmptyDocument) {
					log.Debug().Str("path", path).Msg("skipping empty document")
				} else {
					log.Warn().Err(err).Str("path", path).Msg("skipping unreadable document")
				}
				res.Skipped = append(res.Skipped, Skip{Path: path, Err: err})
				continue
			}
			if prev, ok := seen[doc.SourceID]; ok {
				log.Warn().Str("source", doc.SourceID).Str("path", path).Str("previous", prev).
					Msg("duplicate source id")
			}
			seen[doc.SourceID] = path
			res.Documents = append(res.Documents, doc)
		}
	}

	log.Info().Strs("roots", roots).
		Int("documents", len(res.Documents)).
		Int("skipped", len(res.Skipped)).
		Msg("corpus loaded")
	return res, nil
}

// scan lists the eligible files under root sorted by relative path.
func (l *Loader) scan(ctx context.Context, root string) ([]string, error) {
	allowed := l.allowedExtensions()
	var paths []string
	err := l.Walker.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if de != nil && de.IsDir() {
				if filepath.Clean(path) == filepath.Clean(root) {
					return nil
				}
				if !l.Recursive || shouldSkipDir(de.Name()) {
					return godirwalk.SkipThis
				}
				return nil
			}
			if !l.Recursive && filepath.Dir(filepath.Clean(path)) != filepath.Clean(root) {
				return nil
			}
			if _, ok := allowed[extOf(path)]; !ok {
				return nil
			}
			paths = append(paths, path)
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			log.Warn().Err(err).Str("path", path).Msg("walk error, skipping")
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(paths, func(i, j int) bool {
		return rel(root, paths[i]) < rel(root, paths[j])
	})
	return paths, nil
}

func (l *Loader) loadFile(root, path string) (models.Document, error) {
	b, err := l.FileReader.ReadFile(path)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: read %s: %v", models.ErrParseFailure, path, err)
	}

	p := l.parserFor(path)
	text, err := p.Parse(path, b)
	if err != nil {
		return models.Document{}, fmt.Errorf("%w: %s: %v", models.ErrParseFailure, path, err)
	}
	if strings.TrimSpace(text) == "" {
		return models.Document{}, fmt.Errorf("%w: %s", models.ErrEmptyDocument, path)
	}
	return models.Document{
		SourceID: filepath.Base(path),
		Path:     rel(root, path),
		Text:     text,
	}, nil
}

func (l *Loader) parserFor(path string) Parser {
	if p, ok := l.Parsers[extOf(path)]; ok && p != nil {
		return p
	}
	return TextParser{}
}

func (l *Loader) allowedExtensions() map[string]struct{} {
	exts := l.Extensions
	if len(exts) == 0 {
		exts = DefaultExtensions()
	}
	out := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		if n := normalizeExt(e); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

// shouldSkipDir reports directories that never hold corpus documents.
func shouldSkipDir(name string) bool {
	switch strings.ToLower(name) {
	case ".git", ".hg", ".svn", "node_modules", "vendor", ".venv", "venv",
		"__pycache__", ".pytest_cache", ".idea", ".cache":
		return true
	}
	return false
}

func rel(root, p string) string {
	r, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	return filepath.ToSlash(r)
}
