package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	docxMainPart  = "word/document.xml"
	wordNamespace = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// DocxReader extracts body paragraphs followed by table cell text, one
// non-blank entry per line. Legacy binary .doc files are not zip archives
// and fail with ErrExtraction.
type DocxReader struct{}

func (DocxReader) Read(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrExtraction, err)
	}

	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: not an office document: %w", ErrExtraction, err)
	}

	part, err := archive.Open(docxMainPart)
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrExtraction, err)
	}
	defer func() { _ = part.Close() }()

	paragraphs, cells, err := parseDocumentXML(part)
	if err != nil {
		return "", fmt.Errorf("%w: docx: %w", ErrExtraction, err)
	}

	var sb strings.Builder
	for _, blocks := range [][]string{paragraphs, cells} {
		for _, text := range blocks {
			if strings.TrimSpace(text) == "" {
				continue
			}
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// parseDocumentXML walks word/document.xml once. Paragraphs directly in the
// body go to paragraphs; paragraphs inside a top-level table cell are joined
// with newlines into one entry of cells.
func parseDocumentXML(r io.Reader) (paragraphs, cells []string, err error) {
	dec := xml.NewDecoder(r)

	var (
		para       strings.Builder
		cellParas  []string
		tableDepth int
		inText     bool
		inTabStops bool
	)

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tc":
				if tableDepth == 1 {
					cellParas = cellParas[:0]
				}
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "tabs":
				inTabStops = true
			case "tab":
				if !inTabStops {
					para.WriteByte('\t')
				}
			case "br", "cr":
				para.WriteByte('\n')
			}

		case xml.EndElement:
			if t.Name.Space != wordNamespace {
				continue
			}
			switch t.Name.Local {
			case "tbl":
				tableDepth--
			case "tc":
				if tableDepth == 1 {
					cells = append(cells, strings.Join(cellParas, "\n"))
				}
			case "p":
				if tableDepth == 0 {
					paragraphs = append(paragraphs, para.String())
				} else {
					cellParas = append(cellParas, para.String())
				}
			case "t":
				inText = false
			case "tabs":
				inTabStops = false
			}

		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}

	return paragraphs, cells, nil
}
