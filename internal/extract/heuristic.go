package extract

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/xid"

	"pkt.systems/engramd/api"
)

// Heuristic extracts entities from capitalized word runs and links
// entities that co-occur in a sentence. It is deterministic given the
// same input, which keeps ingestion reproducible without a model
// dependency.
type Heuristic struct{}

var _ Extractor = Heuristic{}

// NewHeuristic returns the built-in extractor.
func NewHeuristic() Heuristic {
	return Heuristic{}
}

// stopwords are capitalized words that never become entities on their own.
var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "i": {}, "if": {}, "in": {}, "it": {},
	"of": {}, "on": {}, "or": {}, "the": {}, "then": {}, "this": {},
	"to": {}, "we": {}, "with": {}, "you": {},
}

// Extract dispatches on the item's content kind.
func (h Heuristic) Extract(_ context.Context, item api.ContentItem) (Extraction, error) {
	var sentences []sentence
	switch item.Kind {
	case api.KindStructured:
		sentences = structuredSentences(item.Body)
	case api.KindConversational:
		sentences = conversationalSentences(item.Body)
	default:
		sentences = textSentences(item.Body)
	}
	return buildExtraction(item, sentences), nil
}

// sentence is one extraction unit: the text plus an optional speaker
// entity that owns it.
type sentence struct {
	text    string
	speaker string
}

func textSentences(body string) []sentence {
	parts := strings.FieldsFunc(body, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]sentence, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, sentence{text: p})
	}
	return out
}

// structuredSentences walks a JSON document and treats every string
// value as a sentence. Invalid JSON degrades to plain text handling.
func structuredSentences(body string) []sentence {
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return textSentences(body)
	}
	var out []sentence
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				out = append(out, sentence{text: s})
			}
		case []any:
			for _, item := range val {
				walk(item)
			}
		case map[string]any:
			keys := make([]string, 0, len(val))
			for k := range val {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(val[k])
			}
		}
	}
	walk(doc)
	return out
}

// conversationalSentences splits "speaker: line" turns. The speaker
// becomes an entity linked to everything mentioned in the turn.
func conversationalSentences(body string) []sentence {
	var out []sentence
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		speaker, rest, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(speaker) == "" || strings.ContainsAny(speaker, " \t") {
			out = append(out, textSentences(line)...)
			continue
		}
		for _, s := range textSentences(rest) {
			out = append(out, sentence{text: s.text, speaker: strings.TrimSpace(speaker)})
		}
	}
	return out
}

func buildExtraction(item api.ContentItem, sentences []sentence) Extraction {
	var ext Extraction
	byName := make(map[string]*api.Entity)
	var order []*api.Entity

	entityFor := func(name, label string) *api.Entity {
		key := strings.ToLower(name)
		if ent, ok := byName[key]; ok {
			return ent
		}
		ent := &api.Entity{
			ID:        xid.New().String(),
			Namespace: item.Namespace,
			Name:      name,
			CreatedAt: item.CreatedAt,
		}
		if label != "" {
			ent.Labels = []string{label}
		}
		byName[key] = ent
		order = append(order, ent)
		return ent
	}

	link := func(src, dst *api.Entity, name, fact string) {
		ext.Relationships = append(ext.Relationships, api.Relationship{
			ID:        xid.New().String(),
			Namespace: item.Namespace,
			SourceID:  src.ID,
			TargetID:  dst.ID,
			Name:      name,
			Fact:      fact,
			ContentID: item.ID,
			CreatedAt: item.CreatedAt,
		})
	}

	for _, s := range sentences {
		names := capitalizedRuns(s.text)
		mentioned := make([]*api.Entity, 0, len(names))
		for _, name := range names {
			mentioned = append(mentioned, entityFor(name, ""))
		}
		if s.speaker != "" {
			speaker := entityFor(s.speaker, "speaker")
			for _, ent := range mentioned {
				if ent == speaker {
					continue
				}
				link(speaker, ent, "mentions", s.speaker+": "+s.text)
			}
			continue
		}
		for i := 1; i < len(mentioned); i++ {
			link(mentioned[i-1], mentioned[i], "associated_with", s.text)
		}
	}
	ext.Entities = make([]api.Entity, len(order))
	for i, ent := range order {
		ext.Entities[i] = *ent
	}
	return ext
}

// capitalizedRuns returns maximal runs of capitalized words, e.g.
// "New York" from "moving to New York next". Single stopwords and
// sentence-initial lone words are kept only if they recur capitalized
// mid-sentence, which this pass approximates by dropping stopwords.
func capitalizedRuns(text string) []string {
	words := strings.Fields(text)
	var runs []string
	var current []string
	flush := func() {
		if len(current) == 0 {
			return
		}
		run := strings.Join(current, " ")
		current = current[:0]
		if len(run) < 2 {
			return
		}
		if _, stop := stopwords[strings.ToLower(run)]; stop {
			return
		}
		runs = append(runs, run)
	}
	for _, word := range words {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if trimmed == "" {
			flush()
			continue
		}
		first := []rune(trimmed)[0]
		if unicode.IsUpper(first) {
			current = append(current, trimmed)
			// Trailing punctuation ends the run.
			if strings.HasSuffix(word, ",") || strings.HasSuffix(word, ";") || strings.HasSuffix(word, ":") {
				flush()
			}
			continue
		}
		flush()
	}
	flush()
	return dedupeStrings(runs)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, s := range in {
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
