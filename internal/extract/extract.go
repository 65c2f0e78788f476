// Package extract turns document bytes into plain text.
//
// A Dispatcher maps a lower-cased file extension to a Reader. Unknown
// extensions fall back to the plain text reader, so no selected file is
// ever skipped for lack of a reader.
package extract

import (
	"errors"
	"io"
	"path"
	"sort"
	"strings"
)

// ErrExtraction wraps every failure to turn a document into text
var ErrExtraction = errors.New("extraction failed")

// Reader extracts plain text from a document stream
type Reader interface {
	Read(r io.Reader) (string, error)
}

// ReaderFunc adapts a function to the Reader interface
type ReaderFunc func(r io.Reader) (string, error)

// Read calls f(r)
func (f ReaderFunc) Read(r io.Reader) (string, error) {
	return f(r)
}

// Extension tags handled by the default dispatcher
const (
	ExtTXT  = "txt"
	ExtMD   = "md"
	ExtLog  = "log"
	ExtCSV  = "csv"
	ExtJSON = "json"
	ExtXML  = "xml"
	ExtPDF  = "pdf"
	ExtDOCX = "docx"
	ExtDOC  = "doc"
)

// Dispatcher resolves a Reader for an extension tag. It performs no I/O.
// Register must not be called once the dispatcher is shared.
type Dispatcher struct {
	readers  map[string]Reader
	fallback Reader
}

// NewDispatcher returns a dispatcher with the built-in readers registered
func NewDispatcher() *Dispatcher {
	text := TextReader{}
	d := &Dispatcher{
		readers:  make(map[string]Reader),
		fallback: text,
	}
	for _, ext := range []string{ExtTXT, ExtMD, ExtLog, ExtCSV, ExtJSON, ExtXML} {
		d.Register(ext, text)
	}
	d.Register(ExtPDF, PDFReader{})
	d.Register(ExtDOCX, DocxReader{})
	d.Register(ExtDOC, DocxReader{})
	return d
}

// Register binds ext (case-insensitive, leading dot optional) to r
func (d *Dispatcher) Register(ext string, r Reader) {
	d.readers[normalizeTag(ext)] = r
}

// ReaderFor returns the reader for ext, or the plain text reader
func (d *Dispatcher) ReaderFor(ext string) Reader {
	if r, ok := d.readers[normalizeTag(ext)]; ok {
		return r
	}
	return d.fallback
}

// Extensions lists the registered tags in sorted order
func (d *Dispatcher) Extensions() []string {
	exts := make([]string, 0, len(d.readers))
	for ext := range d.readers {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Extension returns the lower-cased text after the last dot of name, or ""
func Extension(name string) string {
	name = path.Base(name)
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

func normalizeTag(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}
