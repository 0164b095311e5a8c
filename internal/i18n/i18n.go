// Package i18n loads the localized message catalogs and hands out printers
// for the supported languages.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale is the canonical source locale; every key must exist in it.
const BaseLocale = "en-US"

//go:embed locales/*/*.yaml
var embeddedLocales embed.FS

var supportedTags = []language.Tag{
	language.AmericanEnglish,
	language.MustParse("zh-CN"),
}

var tagMatcher = language.NewMatcher(supportedTags)

type catalogFile struct {
	Locale    string            `yaml:"locale"`
	Namespace string            `yaml:"namespace"`
	Messages  map[string]string `yaml:"messages"`
}

// Bundle holds every locale's messages and the x/text catalog built from them.
type Bundle struct {
	locales map[string]map[string]string
	builder *catalog.Builder
}

// Default loads the embedded catalogs. It panics on a malformed embedded file.
func Default() *Bundle {
	b, err := LoadFromFS(embeddedLocales)
	if err != nil {
		panic(fmt.Sprintf("embedded locales: %v", err))
	}
	return b
}

// LoadFromFS loads locales/<locale>/<namespace>.yaml files from fsys.
func LoadFromFS(fsys fs.FS) (*Bundle, error) {
	paths, err := fs.Glob(fsys, "locales/*/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	b := &Bundle{
		locales: map[string]map[string]string{},
		builder: catalog.NewBuilder(catalog.Fallback(language.AmericanEnglish)),
	}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		if err := b.addFile(path, file); err != nil {
			return nil, err
		}
	}

	base, ok := b.locales[BaseLocale]
	if !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}
	for locale, msgs := range b.locales {
		for key := range msgs {
			if _, ok := base[key]; !ok {
				return nil, fmt.Errorf("locale %s: key %q missing from base locale", locale, key)
			}
		}
	}
	if err := b.register(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) addFile(path string, file catalogFile) error {
	localeFromPath := filepath.Base(filepath.Dir(path))
	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", path)
	}
	if locale != localeFromPath {
		return fmt.Errorf("catalog %s: locale %q must match path locale %q", path, locale, localeFromPath)
	}
	if file.Messages == nil {
		return fmt.Errorf("catalog %s: messages map is required", path)
	}

	msgs, ok := b.locales[locale]
	if !ok {
		msgs = map[string]string{}
		b.locales[locale] = msgs
	}
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", path)
		}
		if _, dup := msgs[key]; dup {
			return fmt.Errorf("catalog %s: duplicate key %q in locale %q", path, key, locale)
		}
		msgs[key] = value
	}
	return nil
}

func (b *Bundle) register() error {
	for locale, msgs := range b.locales {
		tag, err := language.Parse(locale)
		if err != nil {
			return fmt.Errorf("parse locale tag %q: %w", locale, err)
		}
		for key, value := range msgs {
			if err := b.builder.SetString(tag, key, value); err != nil {
				return fmt.Errorf("register %s/%s: %w", locale, key, err)
			}
		}
	}
	return nil
}

// Match resolves a free-form language preference ("zh", "en-GB", "zh-Hans")
// to one of the supported tags. Unparseable input yields the base locale.
func Match(lang string) language.Tag {
	tag, err := language.Parse(strings.TrimSpace(lang))
	if err != nil {
		return language.AmericanEnglish
	}
	_, idx, _ := tagMatcher.Match(tag)
	return supportedTags[idx]
}

// Supported returns the supported language tags.
func Supported() []language.Tag {
	out := make([]language.Tag, len(supportedTags))
	copy(out, supportedTags)
	return out
}

// Base returns the two-letter base language of tag ("en", "zh").
func Base(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

// Printer returns a printer bound to this bundle's messages.
func (b *Bundle) Printer(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag, message.Catalog(b.builder))
}

// Sprintf formats the message key for tag.
func (b *Bundle) Sprintf(tag language.Tag, key string, args ...any) string {
	return b.Printer(tag).Sprintf(key, args...)
}

// Message returns the raw template for key with base-locale fallback.
func (b *Bundle) Message(tag language.Tag, key string) (string, bool) {
	if msgs, ok := b.locales[tag.String()]; ok {
		if v, ok := msgs[key]; ok {
			return v, true
		}
	}
	v, ok := b.locales[BaseLocale][key]
	return v, ok
}
