// Package prompts holds the templates sent to the language model.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

// DefaultLanguage is used when no template exists for the requested language.
const DefaultLanguage = "en"

// maxTopicRunes bounds the topic text placed in a prompt.
const maxTopicRunes = 2000

var (
	topicTagRegex              = regexp.MustCompile(`(?i)</?\s*topic\b[^>]*>`)
	systemInstructionsTagRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

var (
	loadOnce       sync.Once
	loadErr        error
	draftTemplates map[string]*template.Template
)

// DraftData holds template data for draft prompts.
type DraftData struct {
	Topic string
	Count int
}

func load() error {
	loadOnce.Do(func() {
		draftTemplates = make(map[string]*template.Template)
		files, err := templateFS.ReadDir("templates")
		if err != nil {
			loadErr = fmt.Errorf("read prompt templates: %w", err)
			return
		}
		for _, f := range files {
			name := f.Name()
			lang, ok := strings.CutPrefix(strings.TrimSuffix(name, ".txt"), "draft_")
			if !ok {
				continue
			}
			content, err := templateFS.ReadFile("templates/" + name)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", name, err)
				return
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			draftTemplates[lang] = tmpl
		}
	})
	return loadErr
}

// Languages reports the languages a draft prompt exists for.
func Languages() []string {
	if err := load(); err != nil {
		return nil
	}
	langs := make([]string, 0, len(draftTemplates))
	for l := range draftTemplates {
		langs = append(langs, l)
	}
	return langs
}

// BuildDraftPrompt renders the draft prompt in lang, falling back to
// DefaultLanguage. Only the base language of tags like "fr-CA" is used.
func BuildDraftPrompt(lang, topic string, count int) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	base, _, _ := strings.Cut(strings.ToLower(lang), "-")
	tmpl, ok := draftTemplates[base]
	if !ok {
		tmpl, ok = draftTemplates[DefaultLanguage]
		if !ok {
			return "", fmt.Errorf("no draft prompt for %q", lang)
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, DraftData{Topic: sanitizeTopic(topic), Count: count}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitizeTopic strips tags that could close the prompt sections early and
// truncates very long input.
func sanitizeTopic(topic string) string {
	topic = topicTagRegex.ReplaceAllString(topic, "")
	topic = systemInstructionsTagRegex.ReplaceAllString(topic, "")
	topic = strings.TrimSpace(topic)

	if utf8.RuneCountInString(topic) > maxTopicRunes {
		runes := []rune(topic)
		topic = string(runes[:maxTopicRunes])
	}
	return topic
}
