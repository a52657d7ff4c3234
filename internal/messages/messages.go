// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package messages provides the localized text shown to operators.
//
// Catalogs are embedded YAML files parsed with go-i18n. A message that is
// missing from the requested language falls back to English, and an unknown
// message id is returned verbatim.
package messages

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Message ids.
const (
	ProgressStarting       = "progress.starting"
	ProgressStopping       = "progress.stopping"
	ProgressStopped        = "progress.stopped"
	ProgressAlreadyStopped = "progress.already_stopped"
	ProgressWaitingToStop  = "progress.waiting_to_stop"

	ErrorStopping           = "errors.stopping"
	ErrorStoppingCode       = "errors.stopping_code"
	ErrorStarting           = "errors.starting"
	ErrorStartingCode       = "errors.starting_code"
	ErrorStartingWindows    = "errors.starting_windows"
	ErrorStartingUnix       = "errors.starting_unix"
	ErrorLaunching          = "errors.launching"
	ErrorReadingOutput      = "errors.reading_output"
	ErrorReadingErrorOutput = "errors.reading_error_output"

	WarnMarkerMissing = "warnings.marker_missing"

	ResultStarted        = "results.started"
	ResultStopped        = "results.stopped"
	ResultAlreadyStopped = "results.already_stopped"
	ResultRunning        = "results.running"
	ResultNotRunning     = "results.not_running"
	ResultReachable      = "results.reachable"
)

//go:embed locales/*.yaml
var localeFS embed.FS

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
	bundleErr  error
	languages  []string

	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

func loadBundle() (*i18n.Bundle, error) {
	bundleOnce.Do(func() {
		b := i18n.NewBundle(language.English)
		b.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		files, err := fs.ReadDir(localeFS, "locales")
		if err != nil {
			bundleErr = fmt.Errorf("failed to read embedded locales: %w", err)
			return
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			name := path.Join("locales", f.Name())
			data, err := localeFS.ReadFile(name)
			if err != nil {
				bundleErr = fmt.Errorf("failed to read %s: %w", name, err)
				return
			}
			if _, err := b.ParseMessageFileBytes(data, name); err != nil {
				bundleErr = fmt.Errorf("failed to parse %s: %w", name, err)
				return
			}
			languages = append(languages, strings.TrimSuffix(f.Name(), path.Ext(f.Name())))
		}
		sort.Strings(languages)
		bundle = b
	})
	return bundle, bundleErr
}

// Catalog localizes message ids into one language.
type Catalog struct {
	lang      string
	localizer *i18n.Localizer
}

// New creates a catalog for lang, a BCP 47 tag such as "en" or "de-DE".
// An empty lang selects English.
func New(lang string) (*Catalog, error) {
	b, err := loadBundle()
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = language.English.String()
	}
	if _, err := language.Parse(lang); err != nil {
		return nil, fmt.Errorf("invalid locale %q: %w", lang, err)
	}
	return &Catalog{
		lang:      lang,
		localizer: i18n.NewLocalizer(b, lang),
	}, nil
}

// Default returns the shared English catalog.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New("en")
		if err != nil {
			panic(fmt.Sprintf("messages: embedded English catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Language returns the tag the catalog was created with.
func (c *Catalog) Language() string {
	return c.lang
}

// Localize renders the message id with data as template values.
func (c *Catalog) Localize(id string, data map[string]any) string {
	msg, err := c.localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}

// Languages lists the embedded catalog languages.
func Languages() []string {
	if _, err := loadBundle(); err != nil {
		return nil
	}
	return append([]string(nil), languages...)
}
