package processor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"ecommerce-events/internal/config"
)

// ErrEventRejected is returned when a transform drops an event (a
// JavaScript function returning null or undefined). A rejected event
// is skipped without failing the polling cycle.
var ErrEventRejected = errors.New("event rejected by transformer")

// Transformer reshapes outgoing events before publish. A JavaScript
// script takes precedence over YAML rules; with neither configured
// events pass through untouched.
type Transformer struct {
	config   *config.ProcessorConfig
	logger   *logrus.Logger
	rules    map[string]*ruleMatcher // by topic
	jsScript string
}

type ruleMatcher struct {
	include   map[string]bool
	exclude   map[string]bool
	rename    map[string]string
	addFields map[string]string
}

func NewTransformer(cfg *config.ProcessorConfig, logger *logrus.Logger) (*Transformer, error) {
	t := &Transformer{
		config: cfg,
		logger: logger,
		rules:  make(map[string]*ruleMatcher),
	}
	if cfg == nil || !cfg.Enabled {
		return t, nil
	}

	if cfg.Script != "" {
		scriptContent, err := os.ReadFile(cfg.Script)
		if err != nil {
			return nil, fmt.Errorf("failed to read JavaScript script file: %w", err)
		}
		if err := validateScript(string(scriptContent)); err != nil {
			return nil, fmt.Errorf("invalid JavaScript script: %w", err)
		}
		t.jsScript = string(scriptContent)
		logger.Infof("Loaded JavaScript transformation script: %s", cfg.Script)
	}

	for _, rule := range cfg.Rules {
		matcher := &ruleMatcher{
			include:   make(map[string]bool),
			exclude:   make(map[string]bool),
			rename:    rule.Rename,
			addFields: rule.AddFields,
		}
		for _, field := range rule.Include {
			matcher.include[strings.ToLower(field)] = true
		}
		for _, field := range rule.Exclude {
			matcher.exclude[strings.ToLower(field)] = true
		}
		t.rules[rule.Topic] = matcher
	}

	return t, nil
}

// validateScript checks that the script yields a function: either an
// anonymous function expression or a named 'transform' function.
func validateScript(scriptContent string) error {
	vm := goja.New()
	result, err := vm.RunString(scriptContent)
	if err != nil {
		return fmt.Errorf("failed to execute script: %w", err)
	}
	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if _, ok := goja.AssertFunction(result); ok {
			return nil
		}
	}
	transformVar := vm.Get("transform")
	if transformVar != nil && !goja.IsUndefined(transformVar) && !goja.IsNull(transformVar) {
		if _, ok := goja.AssertFunction(transformVar); ok {
			return nil
		}
	}
	return fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
}

// Transform applies the configured transformation to one event.
func (t *Transformer) Transform(topic string, payload any) (any, error) {
	if t.config == nil || !t.config.Enabled {
		return payload, nil
	}
	if t.jsScript != "" {
		return t.transformWithJavaScript(topic, payload)
	}
	if rule, ok := t.rules[topic]; ok {
		return rule.apply(payload)
	}
	return payload, nil
}

// apply reshapes the event's top-level fields. The metadata bag is a
// single field at this level and is included or dropped whole.
func (m *ruleMatcher) apply(payload any) (any, error) {
	fields, err := toMap(payload)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(fields))
	for key, value := range fields {
		lower := strings.ToLower(key)
		if len(m.include) > 0 && !m.include[lower] {
			continue
		}
		if m.exclude[lower] {
			continue
		}
		if renamed, ok := m.rename[key]; ok {
			key = renamed
		}
		out[key] = value
	}
	for key, value := range m.addFields {
		out[key] = value
	}
	return out, nil
}

// transformWithJavaScript runs the script's function over the event.
// goja runtimes are not safe for concurrent use, so each call gets a
// fresh one; pollers transform independently.
func (t *Transformer) transformWithJavaScript(topic string, payload any) (any, error) {
	eventJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	vm := goja.New()
	if err := t.setupConsoleBindings(vm); err != nil {
		return nil, fmt.Errorf("failed to setup console bindings: %w", err)
	}

	scriptResult, err := vm.RunString(t.jsScript)
	if err != nil {
		return nil, fmt.Errorf("failed to execute JavaScript script: %w", err)
	}

	var callable goja.Callable
	var ok bool
	if scriptResult != nil && !goja.IsUndefined(scriptResult) && !goja.IsNull(scriptResult) {
		callable, ok = goja.AssertFunction(scriptResult)
	}
	if !ok {
		transformVar := vm.Get("transform")
		if transformVar != nil && !goja.IsUndefined(transformVar) && !goja.IsNull(transformVar) {
			callable, ok = goja.AssertFunction(transformVar)
		}
	}
	if !ok {
		return nil, fmt.Errorf("script must export a function (either anonymous function or named 'transform' function)")
	}

	if err := vm.Set("eventJSON", string(eventJSON)); err != nil {
		return nil, fmt.Errorf("failed to set event JSON: %w", err)
	}
	eventObj, err := vm.RunString("JSON.parse(eventJSON)")
	if err != nil {
		return nil, fmt.Errorf("failed to parse event JSON: %w", err)
	}

	result, err := callable(goja.Undefined(), eventObj, vm.ToValue(topic))
	if err != nil {
		return nil, fmt.Errorf("JavaScript transform function error: %w", err)
	}

	if result == nil || goja.IsUndefined(result) || goja.IsNull(result) {
		return nil, ErrEventRejected
	}

	return result.Export(), nil
}

func (t *Transformer) setupConsoleBindings(vm *goja.Runtime) error {
	console := vm.NewObject()
	logFn := func(level func(args ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			args := make([]interface{}, len(call.Arguments))
			for i, arg := range call.Arguments {
				args[i] = arg.Export()
			}
			level(args...)
			return goja.Undefined()
		}
	}
	if err := console.Set("log", logFn(t.logger.Info)); err != nil {
		return err
	}
	if err := console.Set("warn", logFn(t.logger.Warn)); err != nil {
		return err
	}
	if err := console.Set("error", logFn(t.logger.Error)); err != nil {
		return err
	}
	return vm.Set("console", console)
}

func toMap(payload any) (map[string]any, error) {
	if m, ok := payload.(map[string]any); ok {
		return m, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode event fields: %w", err)
	}
	return m, nil
}
