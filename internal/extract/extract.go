// Package extract pulls plain text out of uploaded files. Supported formats
// are plain text, markdown, DOCX and PDF, keyed by filename extension.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kailas-cloud/docdex/internal/domain"
)

// Result is the extracted text plus file-level metadata.
type Result struct {
	Text     string
	FileType string
	// Extra carries format-specific metadata, e.g. total_pages for PDFs.
	Extra map[string]string
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// SupportedExtensions lists the extensions Extract accepts, without dots.
func SupportedExtensions() []string {
	return []string{"txt", "md", "docx", "pdf"}
}

// Extract converts an uploaded file to plain text based on its extension.
// Unknown extensions yield ErrUnsupportedFileType.
func Extract(filename string, data []byte) (Result, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch ext {
	case "txt", "md":
		return Result{Text: string(bytes.TrimPrefix(data, utf8BOM)), FileType: ext}, nil
	case "docx":
		text, err := readDOCX(data)
		if err != nil {
			return Result{}, fmt.Errorf("extract %s: %w", filename, err)
		}
		return Result{Text: text, FileType: ext}, nil
	case "pdf":
		text, pages, err := readPDF(data)
		if err != nil {
			return Result{}, fmt.Errorf("extract %s: %w", filename, err)
		}
		return Result{
			Text:     text,
			FileType: ext,
			Extra:    map[string]string{"total_pages": strconv.Itoa(pages)},
		}, nil
	default:
		return Result{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFileType, filename)
	}
}

// readDOCX opens the file as a ZIP archive and pulls paragraph text out of
// word/document.xml.
func readDOCX(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive: %w", err)
	}

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		return parseDocumentXML(content)
	}
	return "", fmt.Errorf("docx archive has no word/document.xml")
}

// documentXML mirrors the parts of word/document.xml we read.
type documentXML struct {
	Body struct {
		Paragraphs []struct {
			Runs []struct {
				Text []struct {
					Content string `xml:",chardata"`
				} `xml:"t"`
			} `xml:"r"`
		} `xml:"p"`
	} `xml:"body"`
}

func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("parse document.xml: %w", err)
	}

	var b strings.Builder
	for i, para := range doc.Body.Paragraphs {
		if i > 0 {
			b.WriteString("\n")
		}
		for _, run := range para.Runs {
			for _, t := range run.Text {
				b.WriteString(t.Content)
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// readPDF extracts page text in order. The pdf library panics on some
// malformed inputs, so the whole read is wrapped in a recover.
func readPDF(data []byte) (text string, pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}

	pages = r.NumPage()
	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", 0, fmt.Errorf("read pdf page %d: %w", i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(content)
	}
	return strings.TrimSpace(b.String()), pages, nil
}
