// Package bundler holds the esbuild plumbing shared by the stylesheet and
// script collaborators.
package bundler

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"deno":    api.EngineDeno,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"hermes":  api.EngineHermes,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"node":    api.EngineNode,
	"opera":   api.EngineOpera,
	"rhino":   api.EngineRhino,
	"safari":  api.EngineSafari,
}

var enginePattern = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+){0,2})$`)

// ParseEngines converts browser targets such as "chrome58" or "safari11.1"
// into esbuild engines.
func ParseEngines(targets []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(targets))
	for _, t := range targets {
		m := enginePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(t)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", t)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q in target %q", m[1], t)
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"es2023": api.ES2023,
	"es2024": api.ES2024,
	"esnext": api.ESNext,
}

// ParseTarget converts a language level such as "es2015" into an esbuild
// target. An empty string selects es2015.
func ParseTarget(s string) (api.Target, error) {
	if s == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown language target %q", s)
	}
	return t, nil
}

// MessageError is the set of esbuild errors of one invocation.
type MessageError struct {
	Messages []api.Message
}

func (e *MessageError) Error() string {
	parts := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		parts = append(parts, formatMessage(m))
	}
	return strings.Join(parts, "; ")
}

func formatMessage(m api.Message) string {
	if m.Location == nil {
		return m.Text
	}
	return fmt.Sprintf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text)
}

// Check returns a MessageError when msgs is not empty.
func Check(msgs []api.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return &MessageError{Messages: msgs}
}

// Unminified maps an output such as style.min.css back to style.css, the
// file its source map points to.
func Unminified(rel string) string {
	base := path.Base(rel)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return strings.TrimSuffix(stem, ".min") + ext
}
