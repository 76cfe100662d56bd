// Package restock reads restock manifests and applies them to the stock ledger.
//
// A manifest is a gzipped text file with one line per counter:
//
//	productId,variantId,qty
//
// The variant column may be blank. Blank lines and lines starting with # are ignored.
package restock

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Line is a single restock instruction.
type Line struct {
	ProductID string
	VariantID *string
	Quantity  int
	Number    int
}

// Manifest is a parsed restock file.
type Manifest struct {
	Source string
	Lines  []Line
}

// Loader defines the interface for loading restock manifests.
type Loader interface {
	// Load reads a gzipped manifest and returns its lines.
	Load(ctx context.Context, path string) (*Manifest, error)
}

// ParseError reports a malformed manifest line.
type ParseError struct {
	Source string
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, e.Reason)
}

// Parse reads manifest lines from an uncompressed reader. Cancellation of ctx
// is checked every checkEvery lines.
func Parse(ctx context.Context, r io.Reader, source string) (*Manifest, error) {
	const checkEvery = 10_000

	m := &Manifest{Source: source}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	number := 0
	for scanner.Scan() {
		number++
		if number%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		line, err := parseLine(text)
		if err != nil {
			return nil, &ParseError{Source: source, Line: number, Reason: err.Error()}
		}
		line.Number = number
		m.Lines = append(m.Lines, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest %s: %w", source, err)
	}

	return m, nil
}

func parseLine(text string) (Line, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return Line{}, fmt.Errorf("expected 3 fields, got %d", len(fields))
	}

	productID := strings.TrimSpace(fields[0])
	if productID == "" {
		return Line{}, fmt.Errorf("product ID is required")
	}

	qty, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil {
		return Line{}, fmt.Errorf("quantity %q is not a number", strings.TrimSpace(fields[2]))
	}
	if qty <= 0 {
		return Line{}, fmt.Errorf("quantity must be greater than zero")
	}

	line := Line{ProductID: productID, Quantity: qty}
	if v := strings.TrimSpace(fields[1]); v != "" {
		line.VariantID = &v
	}
	return line, nil
}
