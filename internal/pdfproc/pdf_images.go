// Package pdfproc implements a limited set of operations to process PDFs:
// reading metadata and extracting embedded images for OCR.
package pdfproc

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/johbar/tesspipe/pkg/pdfdateparser"
	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

type PdfMetaData struct {
	Author, Title, Subject string
	Created, Modified      time.Time
	PageCount              int
}

// Map returns the non-empty fields as document metadata.
func (m PdfMetaData) Map() map[string]string {
	meta := map[string]string{"x-doctype": "pdf", "x-document-pages": strconv.Itoa(m.PageCount)}
	if m.Author != "" {
		meta["x-document-author"] = m.Author
	}
	if m.Title != "" {
		meta["x-document-title"] = m.Title
	}
	if m.Subject != "" {
		meta["x-document-subject"] = m.Subject
	}
	if !m.Created.IsZero() {
		meta["x-document-created"] = m.Created.Format(time.RFC3339)
	}
	if !m.Modified.IsZero() {
		meta["x-document-modified"] = m.Modified.Format(time.RFC3339)
	}
	return meta
}

// PageImage is an image embedded in a PDF page.
type PageImage struct {
	// Page is 1-based
	Page     int
	Name     string
	FileType string
	Data     []byte
}

// Ext returns the file extension matching the image's type, including the dot.
func (img PageImage) Ext() string {
	switch img.FileType {
	case "tif":
		return ".tiff"
	case "":
		return ""
	}
	return "." + img.FileType
}

var pdfConf *model.Configuration

func init() {
	pdfConf = model.NewDefaultConfiguration()
	pdfConf.ValidationMode = model.ValidationRelaxed
}

// ExtractImages calls fn for every image of every page, in page order.
// The image data is read completely before fn is called.
func ExtractImages(rs io.ReadSeeker, fn func(PageImage) error) error {
	return ExtractPageImages(rs, nil, fn)
}

// ExtractPageImages is like ExtractImages, but restricted to the 0-based page indices.
func ExtractPageImages(rs io.ReadSeeker, pageIndices []int, fn func(PageImage) error) error {
	var pages []string
	for _, i := range pageIndices {
		pages = append(pages, strconv.Itoa(i+1))
	}
	err := pdfcpuapi.ExtractImages(rs, pages, func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		data, err := io.ReadAll(img)
		if err != nil {
			return fmt.Errorf("reading image %s on page %d: %w", img.Name, img.PageNr, err)
		}
		return fn(PageImage{Page: img.PageNr, Name: img.Name, FileType: img.FileType, Data: data})
	}, pdfConf)
	if err != nil {
		return fmt.Errorf("extracting images: %w", err)
	}
	return nil
}

func GetPdfInfos(rs io.ReadSeeker) (PdfMetaData, error) {
	info, err := pdfcpuapi.PDFInfo(rs, "", nil, pdfConf)
	if err != nil {
		return PdfMetaData{}, err
	}
	meta := PdfMetaData{Author: info.Author, Title: info.Title, Subject: info.Subject, PageCount: info.PageCount}
	if mod, err := pdfdateparser.PdfDateToTime(info.ModificationDate); err == nil {
		meta.Modified = mod
	}
	if created, err := pdfdateparser.PdfDateToTime(info.CreationDate); err == nil {
		meta.Created = created
	}
	return meta, nil
}
