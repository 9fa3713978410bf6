package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/gingfrederik/docx"
	"github.com/go-pdf/fpdf"
)

// Renderer 将 Document 写成某种文件格式
type Renderer interface {
	Render(w io.Writer, d *Document) error
	ContentType() string
	Ext() string
}

// RendererFor 按格式名查找渲染器，空串视为 pdf
func RendererFor(format string) (Renderer, bool) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "pdf":
		return PDFRenderer{}, true
	case "docx":
		return DOCXRenderer{}, true
	}
	return nil, false
}

const (
	pdfMargin     = 15.0
	pdfLineHeight = 6.0
	// 剩余空间放不下一条的开头部分时直接换页
	pdfEntryMinSpace = 40.0
)

type PDFRenderer struct{}

func (PDFRenderer) ContentType() string { return "application/pdf" }
func (PDFRenderer) Ext() string         { return "pdf" }

func (PDFRenderer) Render(w io.Writer, d *Document) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(d.Title, true)
	pdf.AddPage()

	// 内置字体只支持 cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	_, pageHeight := pdf.GetPageSize()

	for _, b := range d.Blocks() {
		switch b.Kind {
		case BlockTitle:
			pdf.SetFont("Helvetica", "B", 18)
			pdf.MultiCell(0, 10, tr(b.Text), "", "C", false)
		case BlockGenerated:
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(110, 110, 110)
			pdf.MultiCell(0, pdfLineHeight, tr(b.Text), "", "C", false)
			pdf.SetTextColor(0, 0, 0)
			pdf.Ln(4)
		case BlockHeading:
			if pdf.GetY() > pageHeight-pdfMargin-pdfEntryMinSpace {
				pdf.AddPage()
			}
			pdf.Ln(3)
			pdf.SetFont("Helvetica", "B", 12)
			pdf.MultiCell(0, 7, tr(b.Text), "", "L", false)
		case BlockMeta:
			pdf.SetFont("Helvetica", "", 9)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, 5, tr(b.Text), "", "L", false)
			pdf.SetTextColor(0, 0, 0)
		case BlockLink:
			pdf.SetFont("Helvetica", "U", 9)
			pdf.SetTextColor(0, 0, 200)
			pdf.WriteLinkString(5, tr(b.Text), b.Target)
			pdf.Ln(6)
			pdf.SetTextColor(0, 0, 0)
		case BlockSummary:
			pdf.SetFont("Helvetica", "I", 10)
			pdf.MultiCell(0, 5, tr(b.Text), "", "L", false)
			pdf.Ln(1)
		case BlockDescription:
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, tr(b.Text), "", "L", false)
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}

type DOCXRenderer struct{}

func (DOCXRenderer) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
}
func (DOCXRenderer) Ext() string { return "docx" }

func (DOCXRenderer) Render(w io.Writer, d *Document) error {
	f := docx.NewFile()
	for _, b := range d.Blocks() {
		switch b.Kind {
		case BlockTitle:
			addRun(f, b.Text, 20, "")
		case BlockGenerated:
			addRun(f, b.Text, 9, "808080")
			f.AddParagraph() // Spacer
		case BlockHeading:
			f.AddParagraph()
			addRun(f, b.Text, 14, "")
		case BlockMeta:
			addRun(f, b.Text, 9, "808080")
		case BlockLink:
			addRun(f, b.Target, 9, "0000FF")
		case BlockSummary, BlockDescription:
			addRun(f, b.Text, 10, "")
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("render docx: %w", err)
	}
	return nil
}

func addRun(f *docx.File, text string, size int, color string) {
	run := f.AddParagraph().AddText(text)
	run.Size(size)
	if color != "" {
		run.Color(color)
	}
}
