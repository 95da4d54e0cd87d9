package classifier

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/ironsheep/deep-ocr/internal/labels"
	"github.com/ironsheep/deep-ocr/internal/ocrerr"
)

// ClassesFile is the class list file name inside a model directory.
const ClassesFile = "_classes.txt"

// SaveClasses writes the class list to path, one symbol per line, in class
// index order. The space symbol is written as a line holding a single space.
func SaveClasses(path string, classes *labels.Alphabet) error {
	symbols := classes.Symbols()
	lines := make([]string, len(symbols))
	for i, r := range symbols {
		lines[i] = string(r)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0644); err != nil {
		return fmt.Errorf("failed to write class list: %w", err)
	}
	return nil
}

// LoadClasses reads a class list written by SaveClasses. A trailing newline
// is tolerated. Each line must hold exactly one symbol.
func LoadClasses(path string) (*labels.Alphabet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ocrerr.Configf("class list %s is missing", path)
		}
		return nil, fmt.Errorf("failed to read class list: %w", err)
	}

	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")
	symbols := make([]rune, 0, len(lines))
	for i, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if utf8.RuneCountInString(line) != 1 {
			return nil, ocrerr.Configf("class list %s line %d: want one symbol, got %q", path, i+1, line)
		}
		r, _ := utf8.DecodeRuneInString(line)
		symbols = append(symbols, r)
	}
	return labels.FromRunes(symbols)
}
