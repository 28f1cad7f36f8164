// Package l10n provides the localized labels shown by the inspector panel.
package l10n

import (
	"embed"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Label keys.
const (
	KeyTitle        = "tds.webview.inspect.patch"
	KeyIgnoreFiles  = "tds.webview.inspect.ignore.files"
	KeyExport       = "tds.webview.inspect.export.files"
	KeyExportFilter = "tds.webview.inspect.export.files2"
	KeyClose        = "tds.webview.inspect.export.close"
	KeyFilter       = "tds.webview.inspect.filter"
	KeyItemsShowing = "tds.webview.inspect.items.showing"
	KeyColName      = "tds.webview.inspect.col01"
	KeyColDate      = "tds.webview.inspect.col02"
	KeyColType      = "tds.webview.inspect.col03"
	KeyColBuild     = "tds.webview.inspect.col04"
	KeyColSize      = "tds.webview.inspect.col05"
	KeyNoServer     = "tds.webview.inspect.no.server"
	KeyExported     = "tds.webview.inspect.exported"
	KeyOpen         = "tds.webview.inspect.open"
	KeySaveAs       = "tds.webview.inspect.save.as"
)

// DefaultLocale is used when no bundle matches the requested locale.
const DefaultLocale = "en"

//go:embed locales/*.toml
var locales embed.FS

// Bundle resolves label keys for one locale, falling back to English and
// finally to the key itself.
type Bundle struct {
	locale   string
	labels   map[string]string
	fallback map[string]string
}

// Load returns the bundle for locale. "pt_BR", "pt-br" and "pt-BR" are
// equivalent; an unknown region falls back to the bare language.
func Load(locale string) *Bundle {
	fallback, _ := readEmbedded(DefaultLocale)
	b := &Bundle{locale: DefaultLocale, labels: fallback, fallback: fallback}

	for _, candidate := range candidates(locale) {
		if labels, err := readEmbedded(candidate); err == nil {
			b.locale = candidate
			b.labels = labels
			break
		}
	}
	return b
}

// Merge overlays the labels of a TOML file on the bundle.
func (b *Bundle) Merge(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read labels: %w", err)
	}
	var extra map[string]string
	if _, err := toml.Decode(string(data), &extra); err != nil {
		return fmt.Errorf("failed to parse labels %s: %w", path, err)
	}
	merged := make(map[string]string, len(b.labels)+len(extra))
	for k, v := range b.labels {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	b.labels = merged
	return nil
}

// Locale returns the locale the bundle was loaded for.
func (b *Bundle) Locale() string {
	return b.locale
}

// T returns the label for key.
func (b *Bundle) T(key string) string {
	if v, ok := b.labels[key]; ok {
		return v
	}
	if v, ok := b.fallback[key]; ok {
		return v
	}
	return key
}

func candidates(locale string) []string {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if i := strings.IndexByte(locale, '.'); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" {
		return nil
	}
	lang, region, hasRegion := strings.Cut(locale, "-")
	lang = strings.ToLower(lang)
	if !hasRegion {
		return []string{lang}
	}
	return []string{lang + "-" + strings.ToUpper(region), lang}
}

func readEmbedded(locale string) (map[string]string, error) {
	data, err := locales.ReadFile("locales/labels." + locale + ".toml")
	if err != nil {
		return nil, err
	}
	labels := map[string]string{}
	if _, err := toml.Decode(string(data), &labels); err != nil {
		return nil, fmt.Errorf("failed to parse %s labels: %w", locale, err)
	}
	return labels, nil
}
