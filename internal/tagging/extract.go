package tagging

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// MaxPromptChars bounds the extracted text sent to the model.
const MaxPromptChars = 3000

type fileKind int

const (
	kindUnsupported fileKind = iota
	kindText
	kindDocx
	kindPDF
)

func kindOf(filename string) fileKind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".md", ".csv":
		return kindText
	case ".docx":
		return kindDocx
	case ".pdf":
		return kindPDF
	default:
		return kindUnsupported
	}
}

// ExtractText returns the plain text of a text or DOCX document, truncated to
// MaxPromptChars runes. PDFs are not handled here; they go to the model as-is.
func ExtractText(data []byte, filename string) (string, error) {
	var text string
	switch kindOf(filename) {
	case kindText:
		text = strings.ToValidUTF8(string(data), "")
	case kindDocx:
		t, err := docxText(data)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
		}
		text = t
	default:
		return "", fmt.Errorf("%w: unsupported file type %q", ErrExtractionFailed, filepath.Ext(filename))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s contains no text", ErrExtractionFailed, filename)
	}
	return truncateRunes(text, MaxPromptChars), nil
}

// docxText walks word/document.xml and emits one line per body paragraph and one
// " | "-joined line per table row. Nested tables are flattened into their cell.
func docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("not a docx archive: %w", err)
	}
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		return paragraphsText(rc)
	}
	return "", fmt.Errorf("word/document.xml not found")
}

func paragraphsText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var out, para strings.Builder
	var cell, row []string
	inText, inRun := false, false
	tableDepth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to parse document.xml: %w", err)
		}
		switch el := tok.(type) {
		case xml.StartElement:
			switch el.Name.Local {
			case "r":
				inRun = true
			case "t":
				inText = true
			case "tab":
				// Tab stops in paragraph properties share the element name.
				if inRun {
					para.WriteByte('\t')
				}
			case "br", "cr":
				if inRun {
					para.WriteByte('\n')
				}
			case "tbl":
				tableDepth++
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "r":
				inRun = false
			case "t":
				inText = false
			case "p":
				line := strings.TrimSpace(para.String())
				para.Reset()
				if line == "" {
					continue
				}
				if tableDepth > 0 {
					cell = append(cell, line)
				} else {
					out.WriteString(line)
					out.WriteByte('\n')
				}
			case "tc":
				if tableDepth == 1 {
					row = append(row, strings.Join(cell, " "))
					cell = nil
				}
			case "tr":
				if tableDepth == 1 {
					if line := strings.Join(row, " | "); strings.Trim(line, " |") != "" {
						out.WriteString(line)
						out.WriteByte('\n')
					}
					row = nil
				}
			case "tbl":
				tableDepth--
			}
		case xml.CharData:
			if inText {
				para.Write(el)
			}
		}
	}
	return out.String(), nil
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
