package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"storymaker/internal/domain"
)

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// buildCharacters assigns the photos in dir to characters. With names, a
// photo belongs to the first name its file name starts with. Without names,
// every photo becomes its own character named after the file.
func buildCharacters(names []string, dir string) ([]domain.Character, error) {
	var chars []domain.Character
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			chars = append(chars, domain.Character{ID: slug(n), Name: n})
		}
	}
	if dir == "" {
		if len(chars) == 0 {
			return nil, fmt.Errorf("pass -names or -photos")
		}
		return chars, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read photos: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	named := len(chars) > 0
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || !photoExtensions[ext] {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read photo %s: %w", e.Name(), err)
		}
		encoded := base64.StdEncoding.EncodeToString(data)
		stem := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))

		if !named {
			chars = append(chars, domain.Character{ID: slug(stem), Name: stem, Images: []string{encoded}})
			continue
		}
		for i := range chars {
			if strings.HasPrefix(strings.ToLower(stem), strings.ToLower(chars[i].ID)) {
				chars[i].Images = append(chars[i].Images, encoded)
				break
			}
		}
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("no photos found in %s", dir)
	}
	return chars, nil
}

func slug(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "_"))
}
