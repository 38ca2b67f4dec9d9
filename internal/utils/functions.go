package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ParseHeaderArgs turns "Key: value" pairs into a header map. Entries without
// a colon are skipped; BadHeaderArgs reports them.
func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if key, value, ok := strings.Cut(header, ":"); ok && strings.TrimSpace(key) != "" {
			result[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return result
}

// BadHeaderArgs returns the entries ParseHeaderArgs would drop.
func BadHeaderArgs(headers []string) []string {
	var bad []string
	for _, header := range headers {
		if key, _, ok := strings.Cut(header, ":"); !ok || strings.TrimSpace(key) == "" {
			bad = append(bad, header)
		}
	}
	return bad
}

func RenewOutputPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	index := 1
	for {
		outputPath = filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", name, index, ext))
		if _, err := os.Stat(outputPath); os.IsNotExist(err) {
			return outputPath
		}
		index++
	}
}

func TempPartPath(outputPath string) string {
	return filepath.Join(filepath.Dir(outputPath), TempDirName, filepath.Base(outputPath)+".part")
}

// CleanTemp removes leftover part files next to outputDir and drops the temp
// dir once it is empty.
func CleanTemp(outputDir string) error {
	tempDir := filepath.Join(outputDir, TempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".part") {
			if err := os.Remove(filepath.Join(tempDir, file.Name())); err != nil {
				return err
			}
		}
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return err
	}
	if len(remainingFiles) == 0 {
		return os.Remove(tempDir)
	}
	return nil
}
