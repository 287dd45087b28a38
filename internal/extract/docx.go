package extract

import (
	"fmt"

	goword "github.com/VantageDataChat/GoWord"
)

// docxText returns the text of a Word document in body order.
func docxText(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("docx parser panic: %v", r)
		}
	}()

	doc, err := goword.OpenFromBytes(data)
	if err != nil {
		return "", fmt.Errorf("failed to open docx: %w", err)
	}
	return doc.ExtractText(), nil
}
