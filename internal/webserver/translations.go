package webserver

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
)

//go:embed translations/*.json
var translationFiles embed.FS

const defaultLanguage = "en"

// Translation holds translations for a specific language
type Translation map[string]string

// Catalog holds all loaded translations
type Catalog struct {
	languages map[string]Translation
}

// LoadCatalog loads every embedded translation file, keyed by file name.
func LoadCatalog() (*Catalog, error) {
	names, err := translationFiles.ReadDir("translations")
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}

	c := &Catalog{languages: make(map[string]Translation, len(names))}

	for _, entry := range names {
		data, err := translationFiles.ReadFile(path.Join("translations", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read translation %s: %w", entry.Name(), err)
		}

		var trans Translation

		err = json.Unmarshal(data, &trans)
		if err != nil {
			return nil, fmt.Errorf("failed to parse translation %s: %w", entry.Name(), err)
		}

		c.languages[strings.TrimSuffix(entry.Name(), ".json")] = trans
	}

	if _, ok := c.languages[defaultLanguage]; !ok {
		return nil, fmt.Errorf("missing %s translation", defaultLanguage)
	}

	return c, nil
}

// Language determines the language from the lang URL parameter or the
// Accept-Language header
func (c *Catalog) Language(r *http.Request) string {
	if lang := r.URL.Query().Get("lang"); lang != "" && c.supports(lang) {
		return lang
	}

	acceptLang := r.Header.Get("Accept-Language")
	if acceptLang != "" {
		// Format: "en-US,en;q=0.9,uk;q=0.8"
		for lang := range strings.SplitSeq(acceptLang, ",") {
			lang = strings.TrimSpace(strings.Split(lang, ";")[0])
			lang = strings.ToLower(strings.Split(lang, "-")[0])

			if c.supports(lang) {
				return lang
			}
		}
	}

	return defaultLanguage
}

func (c *Catalog) supports(lang string) bool {
	_, exists := c.languages[lang]
	return exists
}

// Text returns the translation for key, falling back to English and then to the key.
func (c *Catalog) Text(lang, key string) string {
	if text, exists := c.languages[lang][key]; exists {
		return text
	}

	if text, exists := c.languages[defaultLanguage][key]; exists {
		return text
	}

	return key
}

// Textf formats the translation for key with args.
func (c *Catalog) Textf(lang, key string, args ...any) string {
	return fmt.Sprintf(c.Text(lang, key), args...)
}

// All returns the translations for lang with English filling the gaps.
func (c *Catalog) All(lang string) Translation {
	out := make(Translation, len(c.languages[defaultLanguage]))
	for k, v := range c.languages[defaultLanguage] {
		out[k] = v
	}

	for k, v := range c.languages[lang] {
		out[k] = v
	}

	return out
}
