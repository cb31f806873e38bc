package transport

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

type formFile struct {
	field    string
	filename string
	content  []byte
}

type formField struct {
	name  string
	value string
}

// Form is a multipart request body built field by field.
type Form struct {
	fields []formField
	files  []formFile
}

// NewForm returns an empty form.
func NewForm() *Form {
	return &Form{}
}

// Set appends a text field.
func (f *Form) Set(name, value string) *Form {
	f.fields = append(f.fields, formField{name: name, value: value})
	return f
}

// SetIfNotEmpty appends a text field only when value is non-empty.
func (f *Form) SetIfNotEmpty(name, value string) *Form {
	if value != "" {
		f.Set(name, value)
	}
	return f
}

// AddFile appends a file part.
func (f *Form) AddFile(field, filename string, content []byte) *Form {
	f.files = append(f.files, formFile{field: field, filename: filename, content: content})
	return f
}

// encode renders the form and returns the body with its content type.
func (f *Form) encode() (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, field := range f.fields {
		if err := w.WriteField(field.name, field.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", field.name, err)
		}
	}
	for _, file := range f.files {
		part, err := w.CreateFormFile(file.field, file.filename)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create form file %s: %w", file.field, err)
		}
		if _, err := part.Write(file.content); err != nil {
			return nil, "", fmt.Errorf("failed to write form file %s: %w", file.field, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
