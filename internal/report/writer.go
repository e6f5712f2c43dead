package report

import "io"

// Writer writes a report in one format.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(r *Report) (int, error)
}

// MultiWriter writes to multiple Writers in order and stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
func (m *MultiWriter) Write(r *Report) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(r)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}
